package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kezsmith/clipforge/internal/config"
	"github.com/kezsmith/clipforge/internal/logging"
	"github.com/kezsmith/clipforge/internal/pipeline"
	"github.com/kezsmith/clipforge/pkg/util"
)

var (
	cfgFile string
	verbose bool

	scriptText string
	scriptFile string
	projectID  string
	profileID  string
	keywords   []string
	filters    []string
	render     bool
)

func main() {
	ctx := context.Background()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "clipforge",
	Short: "clipforge - script-driven short-form video assembly",
	Long:  "Analyzes source footage, scores and selects segment variants, and assembles them against a narrated script.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Optional .env for provider API keys
		_ = godotenv.Load()

		logging.Init(verbose)

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		ctx := config.WithConfig(cmd.Context(), cfg)
		cmd.SetContext(ctx)

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	assembleCmd.Flags().StringVar(&scriptText, "script", "", "narration script text")
	assembleCmd.Flags().StringVar(&scriptFile, "script-file", "", "file containing the narration script")
	assembleCmd.Flags().StringVar(&projectID, "project", "", "project id (default: input file name)")
	assembleCmd.Flags().StringVar(&profileID, "profile", "default", "assembly profile id")
	assembleCmd.Flags().StringSliceVar(&keywords, "keyword", nil, "extra beat-matching keywords")
	assembleCmd.Flags().StringSliceVar(&filters, "filter", nil, "ffmpeg filters for the final pass")
	assembleCmd.Flags().BoolVar(&render, "render", false, "render ready variants after planning")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(assembleCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(configCmd)
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [input video]",
	Short: "Analyze footage and select segment variants",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		pipe, err := pipeline.New(log.Logger, cfg)
		if err != nil {
			return err
		}
		defer pipe.Close()

		result, err := pipe.Analyze(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		for _, w := range result.Warnings {
			log.Warn().Str("category", w.Category()).Msg(w.Message())
		}

		for _, v := range result.Variants {
			log.Info().
				Int("variant", v.VariantIndex).
				Int("segments", len(v.Segments)).
				Str("duration", util.FormatDuration(v.TotalDuration)).
				Msg("variant selected")
		}

		return nil
	},
}

var assembleCmd = &cobra.Command{
	Use:   "assemble [input video]",
	Short: "Assemble script-driven variants from footage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		script, err := loadScript()
		if err != nil {
			return err
		}

		pipe, err := pipeline.New(log.Logger, cfg)
		if err != nil {
			return err
		}
		defer pipe.Close()

		job, results, err := pipe.Assemble(cmd.Context(), args[0], script, pipeline.AssembleOptions{
			ProjectID:    projectID,
			ProfileID:    profileID,
			KeywordHints: keywords,
			Filters:      filters,
			Render:       render,
		})
		if err != nil {
			if job != nil {
				log.Error().Str("job", job.ID).Err(err).Msg("assembly job failed")
			}
			return err
		}

		for _, r := range results {
			ev := log.Info().Int("variant", r.Index).Str("stage", string(r.Stage))
			if r.Err != nil {
				ev = log.Warn().Int("variant", r.Index).Str("stage", string(r.Stage)).Err(r.Err)
			}
			ev.Msg("variant result")
		}

		log.Info().
			Str("job", job.ID).
			Str("status", string(job.Status)).
			Msg("assembly job finished")

		return nil
	},
}

func loadScript() (string, error) {
	if scriptText != "" {
		return scriptText, nil
	}
	if scriptFile != "" {
		data, err := os.ReadFile(scriptFile)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(data)), nil
	}
	return "", fmt.Errorf("either --script or --script-file is required")
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Job inspection commands",
}

var jobsListCmd = &cobra.Command{
	Use:   "list [project id]",
	Short: "List jobs for a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		pipe, err := pipeline.New(log.Logger, cfg)
		if err != nil {
			return err
		}
		defer pipe.Close()

		list, err := pipe.Jobs().ListJobs(args[0])
		if err != nil {
			return err
		}

		for _, job := range list {
			log.Info().
				Str("job", job.ID).
				Str("status", string(job.Status)).
				Int("progress", job.Progress).
				Time("updated", job.UpdatedAt).
				Msg(job.Message)
		}
		if len(list) == 0 {
			log.Info().Str("project", args[0]).Msg("no jobs found")
		}

		return nil
	},
}

var jobsShowCmd = &cobra.Command{
	Use:     "show [job id]",
	Aliases: []string{"get"},
	Short:   "Show one job record",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		pipe, err := pipeline.New(log.Logger, cfg)
		if err != nil {
			return err
		}
		defer pipe.Close()

		job, err := pipe.Jobs().GetJob(args[0])
		if err != nil {
			return err
		}

		out, err := yaml.Marshal(job)
		if err != nil {
			return err
		}
		fmt.Print(string(out))

		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Config management commands",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		out, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Print(string(out))

		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration to ./config.yaml",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		if util.FileExists("./config.yaml") {
			return fmt.Errorf("config.yaml already exists")
		}
		return cfg.Save("./config.yaml")
	},
}

func init() {
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsShowCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}
