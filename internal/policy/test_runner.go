package policy

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/bundle"
	"github.com/open-policy-agent/opa/v1/tester"
	"github.com/open-policy-agent/opa/v1/topdown"
	"github.com/spf13/afero"
)

// TestResult is the outcome of one Rego test rule.
type TestResult struct {
	Name     string        `json:"name"` // e.g. "test_deny_archived"
	Package  string        `json:"package"`
	Passed   bool          `json:"passed"`
	Failed   bool          `json:"failed"`
	Skipped  bool          `json:"skipped"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
	Output   []string      `json:"output,omitempty"` // trace notes
}

// TestSummary aggregates a test run.
type TestSummary struct {
	Passed   int           `json:"passed"`
	Failed   int           `json:"failed"`
	Skipped  int           `json:"skipped"`
	Errored  int           `json:"errored"`
	Total    int           `json:"total"`
	Duration time.Duration `json:"duration"`
	Results  []*TestResult `json:"results"`
}

// TestRunner runs the Rego unit tests that live next to the policies
// (`test_` rules, conventionally in *_test.rego files).
type TestRunner struct {
	fs          afero.Fs
	policiesDir string
	timeout     time.Duration
}

// NewTestRunner creates a runner over policiesDir.
func NewTestRunner(fs afero.Fs, policiesDir string) *TestRunner {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &TestRunner{fs: fs, policiesDir: policiesDir, timeout: 30 * time.Second}
}

// Run compiles every .rego file in the directory and runs its tests.
func (r *TestRunner) Run(ctx context.Context) (*TestSummary, error) {
	modules, err := r.loadModules()
	if err != nil {
		return nil, fmt.Errorf("load modules: %w", err)
	}
	return r.run(ctx, modules)
}

// RunBundle runs the tests packaged in an OPA bundle.
func (r *TestRunner) RunBundle(ctx context.Context, b *bundle.Bundle) (*TestSummary, error) {
	modules := make(map[string]*ast.Module, len(b.Modules))
	for _, mf := range b.Modules {
		modules[mf.Path] = mf.Parsed
	}
	return r.run(ctx, modules)
}

func (r *TestRunner) run(ctx context.Context, modules map[string]*ast.Module) (*TestSummary, error) {
	start := time.Now()
	summary := &TestSummary{Results: []*TestResult{}}
	if len(modules) == 0 {
		summary.Duration = time.Since(start)
		return summary, nil
	}

	compiler := ast.NewCompiler()
	compiler.Compile(modules)
	if compiler.Failed() {
		msgs := make([]string, 0, len(compiler.Errors))
		for _, e := range compiler.Errors {
			msgs = append(msgs, e.Error())
		}
		return nil, fmt.Errorf("compile policies: %s", strings.Join(msgs, "; "))
	}

	runner := tester.NewRunner().
		SetCompiler(compiler).
		SetModules(modules).
		EnableTracing(true).
		SetTimeout(r.timeout)

	ch, err := runner.RunTests(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("run tests: %w", err)
	}

	for tr := range ch {
		res := &TestResult{Name: tr.Name, Package: tr.Package, Duration: tr.Duration}
		switch {
		case tr.Skip:
			res.Skipped = true
			summary.Skipped++
		case tr.Error != nil:
			res.Error = tr.Error.Error()
			summary.Errored++
		case tr.Fail:
			res.Failed = true
			summary.Failed++
		default:
			res.Passed = true
			summary.Passed++
		}
		for _, evt := range tr.Trace {
			if evt.Op == topdown.NoteOp && evt.Message != "" {
				res.Output = append(res.Output, evt.Message)
			}
		}
		summary.Results = append(summary.Results, res)
	}
	summary.Total = len(summary.Results)
	sort.Slice(summary.Results, func(i, j int) bool {
		a, b := summary.Results[i], summary.Results[j]
		if a.Package != b.Package {
			return a.Package < b.Package
		}
		return a.Name < b.Name
	})
	summary.Duration = time.Since(start)
	return summary, nil
}

func (r *TestRunner) loadModules() (map[string]*ast.Module, error) {
	modules := make(map[string]*ast.Module)
	exists, err := afero.DirExists(r.fs, r.policiesDir)
	if err != nil || !exists {
		return modules, err
	}

	err = afero.Walk(r.fs, r.policiesDir, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".rego") {
			return nil
		}
		content, err := afero.ReadFile(r.fs, path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		rel, relErr := filepath.Rel(r.policiesDir, path)
		if relErr != nil || rel == "" {
			rel = path
		}
		mod, err := ast.ParseModuleWithOpts(rel, string(content), ast.ParserOptions{RegoVersion: ast.RegoV1})
		if err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		modules[rel] = mod
		return nil
	})
	return modules, err
}

// HasTests reports whether the directory contains any *_test.rego file.
func (r *TestRunner) HasTests() (bool, error) {
	exists, err := afero.DirExists(r.fs, r.policiesDir)
	if err != nil || !exists {
		return false, err
	}
	found := false
	err = afero.Walk(r.fs, r.policiesDir, func(path string, info fs.FileInfo, err error) error {
		if err != nil || found {
			return err
		}
		if !info.IsDir() && strings.HasSuffix(info.Name(), "_test.rego") {
			found = true
		}
		return nil
	})
	return found, err
}

// FormatSummary renders the one-line result, e.g. "3 tests, 2 passed, 1 failed in 12ms".
func (s *TestSummary) FormatSummary() string {
	if s.Total == 0 {
		return "No tests found.\n"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d tests, %d passed", s.Total, s.Passed)
	if s.Failed > 0 {
		fmt.Fprintf(&sb, ", %d failed", s.Failed)
	}
	if s.Errored > 0 {
		fmt.Fprintf(&sb, ", %d errored", s.Errored)
	}
	if s.Skipped > 0 {
		fmt.Fprintf(&sb, ", %d skipped", s.Skipped)
	}
	fmt.Fprintf(&sb, " in %s\n", s.Duration.Round(time.Millisecond))
	return sb.String()
}

// AllPassed reports whether nothing failed or errored.
func (s *TestSummary) AllPassed() bool {
	return s.Failed == 0 && s.Errored == 0
}
