package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// DefaultPoliciesDir is the policies directory name under the data directory.
const DefaultPoliciesDir = "policies"

// PolicyFile is one Rego module read from disk.
type PolicyFile struct {
	Path    string `json:"path"`
	Name    string `json:"name"` // base name without .rego
	Content string `json:"content"`
}

// Loader reads policy modules from a directory on an afero.Fs so tests can
// use an in-memory filesystem.
type Loader struct {
	fs      afero.Fs
	baseDir string
}

// NewLoader creates a loader rooted at baseDir.
func NewLoader(fs afero.Fs, baseDir string) *Loader {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Loader{fs: fs, baseDir: baseDir}
}

// Dir returns the directory the loader reads from.
func (l *Loader) Dir() string { return l.baseDir }

// LoadAll loads every policy module under the directory, recursively,
// sorted by path. Rego unit tests (*_test.rego) are skipped; TestRunner
// reads those. A missing directory yields no policies.
func (l *Loader) LoadAll() ([]*PolicyFile, error) {
	exists, err := afero.DirExists(l.fs, l.baseDir)
	if err != nil {
		return nil, fmt.Errorf("check policies directory: %w", err)
	}
	if !exists {
		return []*PolicyFile{}, nil
	}

	policies := []*PolicyFile{}
	err = afero.Walk(l.fs, l.baseDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !isPolicyFile(info.Name()) {
			return nil
		}
		p, err := l.LoadFile(path)
		if err != nil {
			return err
		}
		policies = append(policies, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk policies directory: %w", err)
	}
	sort.Slice(policies, func(i, j int) bool { return policies[i].Path < policies[j].Path })
	return policies, nil
}

// LoadFile reads a single policy module.
func (l *Loader) LoadFile(path string) (*PolicyFile, error) {
	content, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return nil, fmt.Errorf("load policy %s: %w", path, err)
	}
	return &PolicyFile{
		Path:    path,
		Name:    strings.TrimSuffix(filepath.Base(path), ".rego"),
		Content: string(content),
	}, nil
}

// InitDefault writes DefaultTransitionPolicy as transitions.rego unless that
// file already exists. It reports whether a file was written.
func (l *Loader) InitDefault() (bool, error) {
	path := filepath.Join(l.baseDir, "transitions.rego")
	exists, err := afero.Exists(l.fs, path)
	if err != nil {
		return false, fmt.Errorf("check default policy: %w", err)
	}
	if exists {
		return false, nil
	}
	if err := l.fs.MkdirAll(l.baseDir, 0o755); err != nil {
		return false, fmt.Errorf("create policies directory: %w", err)
	}
	if err := afero.WriteFile(l.fs, path, []byte(DefaultTransitionPolicy), 0o644); err != nil {
		return false, fmt.Errorf("write default policy: %w", err)
	}
	return true, nil
}

func isPolicyFile(name string) bool {
	return strings.HasSuffix(name, ".rego") && !strings.HasSuffix(name, "_test.rego")
}

// DefaultTransitionPolicy blocks changes to archived plans and warns when
// a review step is closed by an anonymous actor.
const DefaultTransitionPolicy = `package plantrack.transitions

import rego.v1

deny contains msg if {
	input.plan.archived
	msg := sprintf("plan %s is archived", [input.plan.id])
}

warn contains msg if {
	input.step.kind == "review"
	input.request.to == "done"
	input.request.actor == ""
	msg := sprintf("review step %s completed without an actor", [input.step.id])
}
`
