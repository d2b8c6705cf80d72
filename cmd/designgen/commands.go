package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/designgen/internal/config"
	"github.com/kalambet/designgen/internal/engine"
	"github.com/kalambet/designgen/internal/ollama"
	"github.com/kalambet/designgen/internal/pipeline"
	"github.com/kalambet/designgen/internal/proxy"
)

// --- generate ---

var generateCmd = &cobra.Command{
	Use:   "generate <input.json>",
	Short: "Generate code for every component in a description file",
	Long: `Generate code for every component in a description file.

Examples:
  designgen generate ./export/components.json
  designgen generate ./button.json --output ./src/generated --no-cache
  designgen generate ./export/components.json --concurrency 8`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if dir, _ := cmd.Flags().GetString("output"); dir != "" {
			cfg.Output.Dir = dir
		}
		if noCache, _ := cmd.Flags().GetBool("no-cache"); noCache {
			cfg.Pipeline.EnableCaching = false
		}
		if cmd.Flags().Changed("concurrency") {
			cfg.Pipeline.Concurrency, _ = cmd.Flags().GetInt("concurrency")
		}
		setupLogging(cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}

		inputs, err := readInputs(args[0])
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		opts := pipeline.OptionsFromConfig(cfg)
		a, err := openApp(ctx, cfg, engineUsage{generation: true, review: opts.EnableVisualValidation})
		if err != nil {
			return err
		}
		defer a.Close()

		orch, err := a.orchestrator(opts)
		if err != nil {
			return err
		}

		printStep("Generating %d component(s) from %s", len(inputs), args[0])
		sum := orch.RunBatch(ctx, inputs)
		return reportBatch(sum)
	},
}

func init() {
	generateCmd.Flags().StringP("output", "o", "", "output directory (overrides output.dir)")
	generateCmd.Flags().Bool("no-cache", false, "ignore cached results")
	generateCmd.Flags().Int("concurrency", 0, "components processed in parallel (overrides pipeline.concurrency)")
}

// reportBatch prints one line per component and the totals. Any failed
// component makes the command fail.
func reportBatch(sum pipeline.BatchSummary) error {
	for _, c := range sum.Components {
		switch {
		case !c.Success:
			msg := "failed"
			if c.FailedStage != "" {
				msg = "failed at " + c.FailedStage
			}
			if len(c.Errors) > 0 {
				msg += ": " + c.Errors[0]
			}
			printError("%s %s", c.ComponentID, msg)
		case c.Outputs != nil:
			printSuccess("%s → %s%s", c.ComponentID, c.Outputs.Code, cachedLabel(c.Cached))
		default:
			printSuccess("%s%s", c.ComponentID, cachedLabel(c.Cached))
		}
		if c.Warnings > 0 {
			printWarning("%s: %d warning(s)", c.ComponentID, c.Warnings)
		}
	}
	for _, e := range sum.Errors {
		printWarning("%s", e)
	}

	printStatus("Run", "%s", sum.RunID)
	printStatus("Components", "%d succeeded, %d failed, %d cached", sum.Succeeded, sum.Failed, sum.CacheHits)
	printStatus("Duration", "%dms", sum.DurationMs)
	if sum.SummaryPath != "" {
		printStatus("Summary", "%s", sum.SummaryPath)
	}
	if sum.Failed > 0 {
		return fmt.Errorf("%d of %d components failed", sum.Failed, sum.Total)
	}
	return nil
}

func cachedLabel(cached bool) string {
	if cached {
		return " (cached)"
	}
	return ""
}

// --- init ---

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with default values",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("path")
		if path == "" {
			path = configPath
		}
		if path == "" {
			path = config.DefaultPath()
		}
		force, _ := cmd.Flags().GetBool("force")
		if err := config.WriteExample(path, force); err != nil {
			if errors.Is(err, config.ErrExists) {
				return fmt.Errorf("%w (use --force to overwrite)", err)
			}
			return err
		}
		printSuccess("Wrote %s", path)
		printStep("Set the OpenRouter key with: designgen config set generation.openrouter_api_key <key>")
		return nil
	},
}

func init() {
	initCmd.Flags().String("path", "", "where to write the config file")
	initCmd.Flags().Bool("force", false, "overwrite an existing file")
}

// --- validate-config ---

var validateConfigCmd = &cobra.Command{
	Use:   "validate-config",
	Short: "Check the configuration and report every problem",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		err = cfg.Validate()
		if err == nil {
			printSuccess("Configuration %s is valid", cfg.Path)
			if online, _ := cmd.Flags().GetBool("online"); online {
				ctx := cmd.Context()
				if ctx == nil {
					ctx = context.Background()
				}
				return checkGenerationModel(ctx, cfg)
			}
			return nil
		}
		var joined interface{ Unwrap() []error }
		if errors.As(err, &joined) {
			for _, e := range joined.Unwrap() {
				printError("%v", e)
			}
			return fmt.Errorf("%d configuration problem(s) in %s", len(joined.Unwrap()), cfg.Path)
		}
		return err
	},
}

func init() {
	validateConfigCmd.Flags().Bool("online", false, "also check that the generation model is available from the provider")
}

// modelLister lists the models a remote provider serves. *proxy.Client
// implements it.
type modelLister interface {
	ListModels(ctx context.Context) ([]proxy.Model, error)
}

// checkGenerationModel asks the configured provider whether
// generation.model is available.
func checkGenerationModel(ctx context.Context, cfg config.Config) error {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if cfg.Generation.Provider == config.ProviderOllama {
		client := ollama.New(cfg.Ollama.BaseURL)
		if !client.IsRunning(ctx) {
			return fmt.Errorf("%w at %s", engine.ErrNotRunning, cfg.Ollama.BaseURL)
		}
		if !client.HasModel(ctx, cfg.Generation.Model) {
			return fmt.Errorf("model %s is not pulled in ollama", cfg.Generation.Model)
		}
		printSuccess("Model %s is available in ollama", cfg.Generation.Model)
		return nil
	}
	return checkRemoteModel(ctx, proxy.NewClient(cfg.Generation.OpenRouterAPIKey), cfg.Generation.Model)
}

func checkRemoteModel(ctx context.Context, l modelLister, model string) error {
	models, err := l.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("listing openrouter models: %w", err)
	}
	for _, m := range models {
		if m.ID == model {
			printSuccess("Model %s is available on openrouter", model)
			return nil
		}
	}
	return fmt.Errorf("model %s is not offered by openrouter (%d models listed)", model, len(models))
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change configuration values",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show every configuration key with its effective value",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "# %s\n", cfg.Path)
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(out, "%-36s = %-28s  (%s)\n", k.Key, k.Value, k.EnvVar)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetKey(configPath, args[0], args[1]); err != nil {
			return err
		}
		printSuccess("Set %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd)
}
