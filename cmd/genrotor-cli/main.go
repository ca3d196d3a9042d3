// Package main provides the genrotor-cli command-line tool.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	genrotor "github.com/halcyon-ai/genrotor"
	"github.com/halcyon-ai/genrotor/internal/attemptlog"
	"github.com/halcyon-ai/genrotor/internal/version"
	"github.com/halcyon-ai/genrotor/transport"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "genrotor-cli",
		Short:         "Command line tool for the genrotor failover rotator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "path to a config file (JSON/YAML); defaults to environment discovery")

	root.AddCommand(
		newValidateCmd(),
		newGenerateCmd(),
		newModelsCmd(),
		newAttemptsCmd(),
		newVersionCmd(),
	)
	return root
}

// loadCLIConfig resolves the config from --config or the environment.
func loadCLIConfig(cmd *cobra.Command) (genrotor.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		cfg := genrotor.ConfigFromEnv()
		if err := genrotor.ValidateConfig(cfg); err != nil {
			return genrotor.Config{}, fmt.Errorf("environment config: %w", err)
		}
		return cfg, nil
	}
	loaded, err := genrotor.LoadConfig(path)
	if err != nil {
		return genrotor.Config{}, err
	}
	if err := genrotor.ValidateConfig(*loaded); err != nil {
		return genrotor.Config{}, err
	}
	return *loaded, nil
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config-file>",
		Short: "Validate a config file (JSON/YAML)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := genrotor.LoadConfig(args[0])
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if err := genrotor.ValidateConfig(*cfg); err != nil {
				return fmt.Errorf("validation error: %w", err)
			}

			fmt.Printf("✓ Config is valid\n")
			fmt.Printf("  Provider:    %s\n", cfg.Provider)
			fmt.Printf("  Credentials: %d\n", len(cfg.Credentials))
			fmt.Printf("  Models:      %s\n", strings.Join(cfg.Models, ", "))
			if cfg.AttemptLog != nil {
				fmt.Printf("  Attempt log: %s\n", cfg.AttemptLog.Backend)
			}
			return nil
		},
	}
}

func newGenerateCmd() *cobra.Command {
	var (
		system      string
		temperature float64
		maxTokens   int
		timeout     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "generate <prompt>",
		Short: "Generate content, rotating through models and credentials",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadCLIConfig(cmd)
			if err != nil {
				return err
			}
			rotor, err := genrotor.New(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = rotor.Close() }()

			genCfg := &transport.GenerationConfig{SystemInstruction: system}
			if cmd.Flags().Changed("temperature") {
				genCfg.Temperature = &temperature
			}
			if cmd.Flags().Changed("max-tokens") {
				genCfg.MaxOutputTokens = &maxTokens
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			resp, err := rotor.Generate(ctx, args[0], genCfg)
			if err != nil {
				return err
			}
			fmt.Println(resp.Text)
			fmt.Fprintf(os.Stderr, "model=%s backend=%s tokens=%d\n",
				resp.Model, resp.Backend, resp.Usage.TotalTokens)
			return nil
		},
	}
	cmd.Flags().StringVar(&system, "system", "", "system instruction")
	cmd.Flags().Float64Var(&temperature, "temperature", 0, "sampling temperature")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "maximum output tokens")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "overall request timeout")
	return cmd
}

func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "Print the model roster in traversal order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadCLIConfig(cmd)
			if err != nil {
				return err
			}
			for _, m := range cfg.Models {
				fmt.Println(m)
			}
			return nil
		},
	}
}

func newAttemptsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "attempts",
		Short: "Show recent attempt journal entries, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadCLIConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.AttemptLog == nil || cfg.AttemptLog.Backend == "" || cfg.AttemptLog.Backend == "none" {
				return fmt.Errorf("no attempt log backend configured")
			}

			var store *attemptlog.SQLWriter
			switch cfg.AttemptLog.Backend {
			case "sqlite":
				store, err = attemptlog.NewSQLiteWriter(cfg.AttemptLog.DSN)
			case "postgres":
				store, err = attemptlog.NewPostgresWriter(cfg.AttemptLog.DSN)
			default:
				return fmt.Errorf("unknown attempt log backend: %s", cfg.AttemptLog.Backend)
			}
			if err != nil {
				return fmt.Errorf("opening attempt log: %w", err)
			}
			defer func() { _ = store.Close() }()

			entries, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No attempts recorded.")
				return nil
			}
			for _, e := range entries {
				line := fmt.Sprintf("%s  %-10s model=%s client=%s slot=%s",
					e.CreatedAt.Format(time.RFC3339), e.Outcome, e.Model, e.Client, e.Slot)
				if e.ErrorMessage != "" {
					line += "  " + e.ErrorMessage
				}
				fmt.Println(line)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum entries to show")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("genrotor-cli %s\n", version.String())
		},
	}
}
