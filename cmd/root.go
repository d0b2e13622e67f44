/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/josephgoksu/plantrack/internal/config"
	"github.com/josephgoksu/plantrack/internal/logger"
)

var (
	// cfgFile is the path to the configuration file.
	cfgFile string
	// verbose enables verbose output.
	verbose bool
	// jsonOutput switches every command to machine-readable output.
	jsonOutput bool
	// version is the application version.
	version = "0.1.0"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "plantrack",
	Short: "plantrack validates implementation plans and tracks their progress.",
	Long: `plantrack checks structured implementation plans (JSON or YAML) for
structural and semantic errors, then tracks the status of every step as work
happens: which steps may start, what is blocked, and how far each phase is.

Examples:
  plantrack validate plan.yaml          # Check a plan document
  plantrack import plan.yaml            # Store it for tracking
  plantrack ready plan-auth             # Steps that may start now
  plantrack step start plan-auth A      # Move a step to in-progress
  plantrack show plan-auth              # Progress by phase`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger.SetCommand(cmd.CommandPath())
		logger.SetBasePath(GetConfig().Data.Dir)
		return setupLogging()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	defer logger.HandlePanic()
	logger.SetVersion(version)

	err := rootCmd.Execute()
	switch {
	case err == nil:
	case errors.Is(err, errSilentFailure):
		exitFunc(1)
	default:
		HandleFatalError(userMessage(err), err)
	}
}

func init() {
	cobra.OnInitialize(InitConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./.plantrack/.plantrack.yaml, $HOME/.plantrack.yaml or ./.plantrack.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print machine-readable JSON")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("data-dir", "", "directory holding plan stores (default "+config.DefaultDataDir+")")

	// Bind persistent flags to Viper
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("data.dir", rootCmd.PersistentFlags().Lookup("data-dir"))
}

// setupLogging installs the default slog logger. --verbose forces debug.
func setupLogging() error {
	cfg := GetConfig()
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(logger.New(os.Stderr, level, cfg.Log.JSON))
	return nil
}
