/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/josephgoksu/plantrack/internal/config"
	"github.com/josephgoksu/plantrack/internal/logger"
)

var crashesCmd = &cobra.Command{
	Use:   "crashes",
	Short: "List or show crash logs",
	Long: `List the crash logs written when plantrack panics, newest last.

Examples:
  plantrack crashes               # List crash logs
  plantrack crashes show          # Print the newest crash log
  plantrack crashes show crash_20250101_120000.000.log`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := logger.ListCrashLogs()
		if err != nil {
			return fmt.Errorf("list crash logs: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd, paths)
		}
		if len(paths) == 0 {
			cmd.Printf("No crash logs in %s\n", config.GetCrashLogDir())
			return nil
		}
		for _, p := range paths {
			cmd.Println(p)
		}
		return nil
	},
}

var crashesShowCmd = &cobra.Command{
	Use:   "show [name]",
	Short: "Print a crash log (default: the newest)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := logger.ListCrashLogs()
		if err != nil {
			return fmt.Errorf("list crash logs: %w", err)
		}
		if len(paths) == 0 {
			return fmt.Errorf("no crash logs in %s", config.GetCrashLogDir())
		}

		path := paths[len(paths)-1]
		if len(args) == 1 {
			path = ""
			for _, p := range paths {
				if filepath.Base(p) == args[0] || strings.HasPrefix(filepath.Base(p), args[0]) {
					path = p
				}
			}
			if path == "" {
				return fmt.Errorf("no crash log matching %q", args[0])
			}
		}

		content, err := logger.ReadCrashLog(path)
		if err != nil {
			return fmt.Errorf("read crash log: %w", err)
		}
		cmd.Print(content)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(crashesCmd)
	crashesCmd.AddCommand(crashesShowCmd)
}
