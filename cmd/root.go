package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/kr/text"
	"github.com/pkg/profile"
	"github.com/spf13/cobra"

	"github.com/cube2222/octostar/config"
	"github.com/cube2222/octostar/logs"
)

var configPath string
var debugLogs bool
var profileMode string

var cfg *config.Config
var profiler interface{ Stop() }

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "octostar",
	Short: "Run Starlark scripts which expose callables as table functions.",
	Example: `octostar run script.star
octostar scan script.star numbers --args '[10]' --named '{"step": 2}'
octostar repl`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.ReadConfig(configPath)
		if err != nil {
			return fmt.Errorf("couldn't read config: %w", err)
		}

		loggingConfig, err := cfg.LoggingConfig()
		if err != nil {
			return fmt.Errorf("couldn't read logging config: %w", err)
		}
		if debugLogs {
			loggingConfig.Debug = true
		}
		if err := logs.Setup(loggingConfig, os.Stderr); err != nil {
			return fmt.Errorf("couldn't setup logging: %w", err)
		}

		switch profileMode {
		case "":
		case "cpu":
			profiler = profile.Start(profile.CPUProfile, profile.ProfilePath(filepath.Join(config.OctostarDir, "profiles")), profile.Quiet)
		case "mem":
			profiler = profile.Start(profile.MemProfile, profile.ProfilePath(filepath.Join(config.OctostarDir, "profiles")), profile.Quiet)
		case "trace":
			profiler = profile.Start(profile.TraceProfile, profile.ProfilePath(filepath.Join(config.OctostarDir, "profiles")), profile.Quiet)
		default:
			return fmt.Errorf("invalid profile '%s', expected cpu, mem or trace", profileMode)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if profiler != nil {
			profiler.Stop()
			log.Printf("[INFO] profile written to %s", filepath.Join(config.OctostarDir, "profiles"))
		}
		logs.CloseLogger()
	},
}

func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error:\n%s\n", text.Indent(err.Error(), "    "))
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "Path to the configuration file.")
	rootCmd.PersistentFlags().BoolVar(&debugLogs, "debug", false, "Enable debug logging.")
	rootCmd.PersistentFlags().StringVar(&profileMode, "profile", "", "Profile the run: cpu, mem or trace.")

	rootCmd.AddCommand(runCmd, scanCmd, replCmd)
}
