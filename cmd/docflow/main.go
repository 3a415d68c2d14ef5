package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/docflow/internal/auth"
	"github.com/fpang/docflow/internal/config"
	"github.com/fpang/docflow/internal/logging"
	"github.com/fpang/docflow/internal/metrics"
)

// Set via -ldflags at build time.
var (
	commitHash = ""
	buildTime  = ""
)

// Global flags
var (
	configFlag     string
	apiURLFlag     string
	logLevelFlag   string
	pollBudgetFlag time.Duration
	jsonLogsFlag   bool
)

// Resolved in setup before any subcommand runs.
var (
	cfg          config.Config
	resolver     *auth.Resolver
	closeMetrics func() error
)

// rootCmd is the main Cobra command for the docflow CLI.
var rootCmd = &cobra.Command{
	Use:   "docflow",
	Short: "Upload PDFs and run document analysis",
	Long: `docflow uploads a PDF to the document service, starts the full analysis
job and follows it to completion, showing progress while the server works.

The access token is read from DOCFLOW_TOKEN, from ~/.docflow/credentials.gpg,
or from an SSM parameter (ssmTokenParam in ~/.docflow/config.yaml).

Examples:
  docflow run contract.pdf
  docflow run                      # opens a file picker
  docflow upload contract.pdf --title "Lease 2024"
  docflow analyze 501
  docflow status 501 502 503
  docflow list
  docflow history`,
	PersistentPreRun: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Config file (default ~/.docflow/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&apiURLFlag, "api-url", "", "Document API base URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().DurationVar(&pollBudgetFlag, "poll-budget", 0, "Give up polling after this long (0 = wait indefinitely)")
	rootCmd.PersistentFlags().BoolVar(&jsonLogsFlag, "json-logs", false, "Write logs as JSON lines")

	rootCmd.AddCommand(runCmd, uploadCmd, analyzeCmd, statusCmd, listCmd, deleteCmd, historyCmd, configCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if closeMetrics != nil {
		if cerr := closeMetrics(); cerr != nil {
			log.Warn().Err(cerr).Msg("Failed to close metrics file")
		}
	}
	if err != nil {
		os.Exit(1)
	}
}

// setup loads config, applies flag overrides and configures logging,
// metrics and the token resolver.
func setup(cmd *cobra.Command, args []string) {
	initStart := time.Now()
	logging.Init()

	var err error
	cfg, err = config.Load(configPath())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	flags := cmd.Flags()
	if flags.Changed("api-url") {
		cfg.APIURL = apiURLFlag
	}
	if flags.Changed("poll-budget") {
		cfg.PollBudget = pollBudgetFlag
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevelFlag
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	if jsonLogsFlag {
		logging.InitJSON(os.Stderr, cfg.LogLevel)
	} else {
		logging.InitWithLevel(cfg.LogLevel)
	}

	if cfg.MetricsFile != "" {
		closeMetrics, err = metrics.OpenFile(cfg.MetricsFile)
		if err != nil {
			log.Warn().Err(err).Str("path", cfg.MetricsFile).Msg("Metrics disabled")
		}
	}

	resolver = auth.NewResolver(cfg.SSMTokenParam)

	startup := logging.NewStartupLogger(cmd.Name()).
		CommitHash(commitHash).
		BuildTime(buildTime).
		Endpoint("api", cfg.APIURL).
		Credential("env", auth.EnvToken).
		File("config", configPath()).
		File("history", cfg.HistoryFile).
		Feature("metrics", cfg.MetricsFile != "").
		Feature("ssmToken", cfg.SSMTokenParam != "").
		Config("firstPollDelay", cfg.FirstPollDelay.String()).
		Config("pollInterval", cfg.PollInterval.String()).
		Config("pollBudget", cfg.PollBudget.String())
	if cfg.SSMTokenParam != "" {
		startup.Credential("ssm", cfg.SSMTokenParam)
	}
	startup.InitDuration(time.Since(initStart)).Log()
}

// configPath resolves --config, then DOCFLOW_CONFIG, then the default.
func configPath() string {
	if configFlag != "" {
		return configFlag
	}
	return logging.EnvOrDefault("DOCFLOW_CONFIG", config.DefaultPath())
}
