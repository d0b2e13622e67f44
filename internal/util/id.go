// Package util provides shared utility functions.
package util

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

const (
	// PlanIDPrefix is the prefix of generated plan IDs ("plan-abcdef12").
	PlanIDPrefix = "plan-"
	// DefaultShortIDLength is the default number of characters for short IDs.
	DefaultShortIDLength = 13
	// MaxAmbiguousCandidates is the max number of candidates to show in ambiguous error.
	MaxAmbiguousCandidates = 5
)

// Errors returned by ID resolution functions.
var (
	ErrAmbiguousID = errors.New("ambiguous ID prefix")
	ErrNotFound    = errors.New("not found")
)

// ShortID returns at most n leading characters of an ID.
// If n is 0 or negative, DefaultShortIDLength is used.
//
//	ShortID("plan-abcdef12-extra", 0) → "plan-abcdef12"
//	ShortID("plan-xyz", 20)           → "plan-xyz"
func ShortID(id string, n int) string {
	if n <= 0 {
		n = DefaultShortIDLength
	}
	if len(id) <= n {
		return id
	}
	return id[:n]
}

// ResolveID resolves an ID or a unique prefix against known IDs.
//
// Resolution rules:
//  1. An exact match wins.
//  2. Otherwise idOrPrefix, and "plan-"+idOrPrefix when it lacks the
//     prefix, are matched as prefixes.
//  3. Several matches return ErrAmbiguousID with candidates.
//  4. No match returns ErrNotFound.
func ResolveID(idOrPrefix string, ids []string) (string, error) {
	if idOrPrefix == "" {
		return "", fmt.Errorf("plan ID: %w", ErrNotFound)
	}
	if slices.Contains(ids, idOrPrefix) {
		return idOrPrefix, nil
	}

	prefixes := []string{idOrPrefix}
	if !strings.HasPrefix(idOrPrefix, PlanIDPrefix) {
		prefixes = append(prefixes, PlanIDPrefix+idOrPrefix)
	}

	var candidates []string
	for _, id := range ids {
		for _, p := range prefixes {
			if strings.HasPrefix(id, p) {
				candidates = append(candidates, id)
				break
			}
		}
	}
	slices.Sort(candidates)
	return resolveFromCandidates(idOrPrefix, candidates)
}

func resolveFromCandidates(prefix string, candidates []string) (string, error) {
	switch len(candidates) {
	case 0:
		return "", fmt.Errorf("plan with prefix %q: %w", prefix, ErrNotFound)
	case 1:
		return candidates[0], nil
	default:
		shown := candidates
		if len(shown) > MaxAmbiguousCandidates {
			shown = shown[:MaxAmbiguousCandidates]
		}
		return "", fmt.Errorf("%w: prefix %q matches %d plans: %v",
			ErrAmbiguousID, prefix, len(candidates), shown)
	}
}
