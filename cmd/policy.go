/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/open-policy-agent/opa/v1/bundle"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/josephgoksu/plantrack/internal/memory"
	"github.com/josephgoksu/plantrack/internal/policy"
	"github.com/josephgoksu/plantrack/internal/status"
	"github.com/josephgoksu/plantrack/internal/steputil"
	"github.com/josephgoksu/plantrack/internal/ui"
	"github.com/josephgoksu/plantrack/internal/util"
)

var (
	policyBundle      string
	decisionsPlan     string
	decisionsDenied   bool
	decisionsLimit    int
	decisionsSince    time.Duration
	pruneOlderThan    time.Duration
	policyCheckPkg    string
)

// policyCmd represents the policy command
var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Manage the Rego policies that guard step transitions",
	Long: `Manage Open Policy Agent (OPA) policies that decide who may change a step.

Policies are written in Rego and stored in .plantrack/policies/*.rego under the
package plantrack.transitions. A "deny" rule blocks the transition; a "warn"
rule is reported but never blocks. Every decision is recorded in the audit log.

Examples:
  plantrack policy init          # Create the default policy file
  plantrack policy list          # List loaded policies
  plantrack policy test          # Run *_test.rego unit tests
  plantrack policy decisions     # Show recent decisions`,
}

var policyInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize default policy file",
	Long: `Create the default policy file in .plantrack/policies/transitions.rego.

The default policy:
  • Denies step changes on archived plans
  • Warns when a review step is completed without an actor`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		loader := policy.NewLoader(afero.NewOsFs(), GetConfig().Policy.Dir)
		created, err := loader.InitDefault()
		if err != nil {
			return err
		}
		path := filepath.Join(loader.Dir(), "transitions.rego")
		if !created {
			cmd.Printf("Policy file already exists: %s\n", path)
			return nil
		}
		cmd.Printf("✓ Created default policy: %s\n", path)
		return nil
	},
}

var policyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List loaded policies",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := GetConfig().Policy.Dir
		policies, err := policy.NewLoader(afero.NewOsFs(), dir).LoadAll()
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd, policies)
		}
		if len(policies) == 0 {
			cmd.Println("No policies loaded.")
			cmd.Println("Run 'plantrack policy init' to create the default policy.")
			return nil
		}
		cmd.Printf("Policies directory: %s\n", dir)
		cmd.Printf("Loaded %d policy file(s):\n\n", len(policies))
		for _, p := range policies {
			rel, err := filepath.Rel(dir, p.Path)
			if err != nil {
				rel = p.Path
			}
			if err := policy.ValidatePolicy(p.Content); err != nil {
				cmd.Printf("  %s %s (%s): %v\n", ui.StyleError.Render("✗"), p.Name, rel, err)
				continue
			}
			cmd.Printf("  • %s (%s)\n", p.Name, rel)
		}
		return nil
	},
}

var policyTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Run Rego policy unit tests",
	Long: `Run the test_ rules in *_test.rego files next to the policies, or in an
OPA bundle given with --bundle.`,
	Args: cobra.NoArgs,
	RunE: runPolicyTest,
}

var policyCheckCmd = &cobra.Command{
	Use:   "check <plan> <step> <state>",
	Short: "Dry-run the policies for a transition without applying it",
	Args:  cobra.ExactArgs(3),
	RunE: runPolicyCheck,
}

var policyDecisionsCmd = &cobra.Command{
	Use:   "decisions",
	Short: "Show recorded policy decisions",
	Args:  cobra.NoArgs,
	RunE:  runPolicyDecisions,
}

var policyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old policy decisions from the audit log",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := memory.NewSQLiteStore(GetConfig().Data.Dir)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		n, err := db.Audit().PruneOldDecisions(time.Now(), pruneOlderThan)
		if err != nil {
			return err
		}
		cmd.Printf("✓ Pruned %d decision(s) older than %s\n", n, pruneOlderThan)
		return nil
	},
}

func runPolicyTest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	runner := policy.NewTestRunner(afero.NewOsFs(), GetConfig().Policy.Dir)

	var (
		summary *policy.TestSummary
		err     error
	)
	if policyBundle != "" {
		b, berr := readBundle(policyBundle)
		if berr != nil {
			return berr
		}
		summary, err = runner.RunBundle(ctx, b)
	} else {
		has, herr := runner.HasTests()
		if herr != nil {
			return herr
		}
		if !has {
			cmd.Println("No policy tests found. Add test_ rules in *_test.rego next to the policies.")
			return nil
		}
		summary, err = runner.Run(ctx)
	}
	if err != nil {
		return err
	}

	if jsonOutput {
		if err := printJSON(cmd, summary); err != nil {
			return err
		}
	} else {
		for _, r := range summary.Results {
			switch {
			case r.Passed:
				cmd.Printf("  %s %s.%s\n", ui.StyleSuccess.Render("PASS"), r.Package, r.Name)
			case r.Skipped:
				cmd.Printf("  %s %s.%s\n", ui.StyleSubtle.Render("SKIP"), r.Package, r.Name)
			default:
				cmd.Printf("  %s %s.%s %s\n", ui.StyleError.Render("FAIL"), r.Package, r.Name, r.Error)
			}
		}
		cmd.Print(summary.FormatSummary())
	}
	if !summary.AllPassed() {
		return errSilentFailure
	}
	return nil
}

func readBundle(path string) (*bundle.Bundle, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("open bundle: %w", err)
	}
	if info.IsDir() {
		loader, err := bundle.NewFSLoader(os.DirFS(path))
		if err != nil {
			return nil, fmt.Errorf("open bundle directory: %w", err)
		}
		b, err := bundle.NewCustomReader(loader).Read()
		if err != nil {
			return nil, fmt.Errorf("read bundle: %w", err)
		}
		return &b, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bundle: %w", err)
	}
	defer func() { _ = f.Close() }()
	b, err := bundle.NewReader(f).Read()
	if err != nil {
		return nil, fmt.Errorf("read bundle: %w", err)
	}
	return &b, nil
}

func runPolicyCheck(cmd *cobra.Command, args []string) error {
	to, err := steputil.NormalizeState(args[2])
	if err != nil {
		return err
	}
	cfg := GetConfig()
	engine, err := policy.NewEngine(policy.EngineConfig{
		PoliciesDir:   cfg.Policy.Dir,
		PolicyPackage: policyCheckPkg,
	})
	if err != nil {
		return err
	}

	a, closeFn, err := appFactory(engine)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx := context.Background()
	id, err := resolvePlan(ctx, a, args[0])
	if err != nil {
		return err
	}
	decision, err := a.CheckPolicy(ctx, id, status.Request{StepID: args[1], To: to, Actor: actor()})
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd, decision)
	}
	if decision.IsAllowed() {
		cmd.Println(ui.StylePrefixDone.Render(fmt.Sprintf("✓ allowed by %d policies", engine.PolicyCount())))
	} else {
		cmd.Println(ui.StylePrefixError.Render("✗ denied"))
	}
	for _, v := range decision.Violations {
		cmd.Printf("  %s %s\n", ui.StyleError.Render("deny"), v)
	}
	for _, w := range decision.Warnings {
		cmd.Printf("  %s %s\n", ui.StyleWarning.Render("warn"), w)
	}
	return nil
}

func runPolicyDecisions(cmd *cobra.Command, args []string) error {
	db, err := memory.NewSQLiteStore(GetConfig().Data.Dir)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	opts := policy.ListDecisionsOptions{PlanID: decisionsPlan, Limit: decisionsLimit}
	if decisionsDenied {
		opts.Result = policy.PolicyResultDeny
	}
	if decisionsSince > 0 {
		opts.Since = time.Now().Add(-decisionsSince)
	}
	decisions, err := db.Audit().ListDecisions(opts)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd, decisions)
	}
	if len(decisions) == 0 {
		cmd.Println("No policy decisions recorded.")
		return nil
	}

	t := &ui.Table{Headers: []string{"WHEN", "RESULT", "PLAN", "STEP", "ACTOR", "DETAIL"}, MaxWidth: 48}
	for _, d := range decisions {
		result := ui.StyleSuccess.Render(d.Result)
		detail := ""
		if d.IsDenied() {
			result = ui.StyleError.Render(d.Result)
			if len(d.Violations) > 0 {
				detail = d.Violations[0]
			}
		} else if len(d.Warnings) > 0 {
			detail = d.Warnings[0]
		}
		t.Rows = append(t.Rows, []string{
			d.EvaluatedAt.Local().Format("2006-01-02 15:04"),
			result,
			util.ShortID(d.PlanID, 0),
			d.StepID,
			d.Actor,
			detail,
		})
	}
	cmd.Print(t.Render())

	since := opts.Since
	if since.IsZero() {
		since = time.Now().Add(-24 * time.Hour)
	}
	if n, err := db.Audit().CountViolations(since); err == nil {
		cmd.Printf("\n%d denial(s) since %s\n", n, since.Local().Format("2006-01-02 15:04"))
	}
	return nil
}

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyInitCmd, policyListCmd, policyTestCmd, policyCheckCmd, policyDecisionsCmd, policyPruneCmd)

	policyTestCmd.Flags().StringVar(&policyBundle, "bundle", "", "run the tests of an OPA bundle (directory or .tar.gz)")
	policyCheckCmd.Flags().StringVar(&policyCheckPkg, "package", "", "Rego package to query (default "+policy.DefaultPolicyPackage+")")
	policyDecisionsCmd.Flags().StringVar(&decisionsPlan, "plan", "", "only decisions for this plan ID")
	policyDecisionsCmd.Flags().BoolVar(&decisionsDenied, "denied", false, "only denials")
	policyDecisionsCmd.Flags().IntVarP(&decisionsLimit, "limit", "n", 20, "maximum rows")
	policyDecisionsCmd.Flags().DurationVar(&decisionsSince, "since", 0, "only decisions newer than this, e.g. 24h")
	policyPruneCmd.Flags().DurationVar(&pruneOlderThan, "older-than", 30*24*time.Hour, "delete decisions older than this")
}
