/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package types

import "strings"

// Report is the outcome of validating a plan document.
type Report struct {
	IsValid  bool    `json:"isValid"`
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

// NewReport returns an empty, valid report with non-nil slices so the JSON
// form always carries both lists.
func NewReport() Report {
	return Report{
		IsValid:  true,
		Errors:   []Issue{},
		Warnings: []Issue{},
	}
}

// AddError appends an error and marks the report invalid.
func (r *Report) AddError(issue *Issue) {
	r.IsValid = false
	r.Errors = append(r.Errors, *issue)
}

// AddWarning appends a warning; validity is unchanged.
func (r *Report) AddWarning(issue Issue) {
	r.Warnings = append(r.Warnings, issue)
}

// ErrorsOfKind filters errors by kind.
func (r Report) ErrorsOfKind(kind ErrorKind) []Issue {
	var out []Issue
	for _, e := range r.Errors {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// ErrorSummary joins all error messages into one line.
func (r Report) ErrorSummary() string {
	if r.IsValid {
		return ""
	}
	parts := make([]string, 0, len(r.Errors))
	for i := range r.Errors {
		parts = append(parts, r.Errors[i].Error())
	}
	return strings.Join(parts, "; ")
}
