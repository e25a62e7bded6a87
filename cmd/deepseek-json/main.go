package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nhle/deepseek-json/internal/ai"
	"github.com/nhle/deepseek-json/internal/console"
	"github.com/nhle/deepseek-json/internal/credential"
	"github.com/nhle/deepseek-json/internal/interrupt"
	"github.com/nhle/deepseek-json/internal/model"
	"github.com/nhle/deepseek-json/internal/theme"
)

var (
	// Global flags
	cfgPath string
	verbose bool

	// Request flags
	query        string
	modelName    string
	temperature  float64
	maxTokens    int
	timeoutSec   int
	baseURL      string
	taskFinisher bool
	maxQuestions int
	format       string

	cfg    *model.AppConfig
	logger = zap.NewNop()
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "deepseek-json",
	Short: "Turn free-text queries into structured JSON artifacts with DeepSeek",
	Long: `deepseek-json sends queries to the DeepSeek chat-completion API and
prints the answers as structured JSON artifacts.

Modes:
  -q "text"           answer a single query
  --taskfinisher      run a clarifying dialogue that ends in a technical task
  (no flags)          interactive mode, one query per line

Configuration is read from ~/.config/deepseek-json/config.yaml, a .env file
and DEEPSEEK_* environment variables, in increasing priority.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	Args:              cobra.NoArgs,
	PersistentPreRunE: setup,
	RunE:              runRoot,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", model.DefaultConfigPath(), "Path to the configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.Flags().StringVarP(&query, "query", "q", "", "Single query to process")
	rootCmd.Flags().StringVarP(&modelName, "model", "m", model.DefaultModel, "Model to use")
	rootCmd.Flags().Float64VarP(&temperature, "temperature", "t", model.DefaultTemperature, "Sampling temperature (0.0-2.0)")
	rootCmd.Flags().IntVar(&maxTokens, "max-tokens", model.DefaultMaxTokens, "Maximum tokens in the response")
	rootCmd.Flags().IntVar(&timeoutSec, "timeout", model.DefaultTimeoutSec, "Per-attempt request timeout in seconds")
	rootCmd.Flags().StringVar(&baseURL, "base-url", model.DefaultBaseURL, "API base URL")
	rootCmd.Flags().BoolVar(&taskFinisher, "taskfinisher", false, "Run the TaskFinisher clarification dialogue")
	rootCmd.Flags().IntVar(&maxQuestions, "max-questions", model.DefaultMaxQuestions, "Clarifying rounds before finalization (at most 5)")
	rootCmd.Flags().StringVar(&format, "format", string(console.FormatPretty), "Output format: pretty or json")

	authCmd.AddCommand(authSetKeyCmd)
	authCmd.AddCommand(authDeleteKeyCmd)
	authCmd.AddCommand(authStatusCmd)

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)

	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	os.Exit(execute())
}

// execute runs the root command under the process interrupt source and
// maps the outcome onto an exit code.
func execute() int {
	// A missing .env file is fine; existing variables are never overridden.
	_ = gotenv.Load()

	src := interrupt.New(interrupt.OnFirst(func(os.Signal) {
		fmt.Fprintln(os.Stderr, theme.HelpStyle.Render("\nInterrupted. Press Ctrl+C again to force exit."))
	}))
	ctx, stop := src.Arm(context.Background())
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	_ = logger.Sync()

	return exitCode(err, src.Fired(), os.Stderr)
}

// exitCode reports err and returns the process status: 0 on success, 130
// after an interrupt and 1 for any other failure. Cancellation is never
// printed.
func exitCode(err error, interrupted bool, errOut io.Writer) int {
	if err == nil {
		return 0
	}
	if interrupted || ai.IsCanceled(err) {
		return interrupt.ExitCode
	}
	if s := console.RenderError(err); s != "" {
		fmt.Fprintln(errOut, s)
	}
	return 1
}

// setup loads configuration, applies explicitly set flags and builds the
// logger.
func setup(cmd *cobra.Command, _ []string) error {
	loaded, err := model.LoadConfig(cfgPath)
	if err != nil {
		return ai.NewConfigError(err)
	}
	applyFlags(cmd, loaded)
	cfg = loaded

	l, err := newLogger(cfg.Log.Level, verbose)
	if err != nil {
		return ai.NewConfigError(err)
	}
	logger = l
	logger.Debug("configuration loaded",
		zap.String("path", cfgPath),
		zap.String("model", cfg.API.Model),
		zap.String("base_url", cfg.API.BaseURL),
		zap.Int("max_questions", cfg.TaskFinisher.MaxQuestions),
	)
	return nil
}

// applyFlags overrides file and environment values with flags the user set.
func applyFlags(cmd *cobra.Command, c *model.AppConfig) {
	flags := cmd.Flags()
	if flags.Changed("model") {
		c.API.Model = modelName
	}
	if flags.Changed("temperature") {
		c.API.Temperature = temperature
	}
	if flags.Changed("max-tokens") {
		c.API.MaxTokens = maxTokens
	}
	if flags.Changed("timeout") {
		c.API.TimeoutSec = timeoutSec
	}
	if flags.Changed("base-url") {
		c.API.BaseURL = baseURL
	}
	if flags.Changed("max-questions") {
		c.TaskFinisher.MaxQuestions = maxQuestions
	}
}

// newLogger builds a production logger on stderr at level, or at debug
// when verbose is set.
func newLogger(level string, verbose bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	if verbose {
		lvl = zapcore.DebugLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(lvl)
	l, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return l, nil
}

// resolveAPIKey falls back to the system keyring when neither the
// environment nor the config file supplied a key.
func resolveAPIKey(c *model.AppConfig) {
	if c.APIKey != "" {
		return
	}
	if key := credential.LookupAPIKey(); key != "" {
		logger.Debug("using API key from system keyring")
		c.APIKey = key
	}
}

func runRoot(cmd *cobra.Command, _ []string) error {
	resolveAPIKey(cfg)
	if err := cfg.Validate(); err != nil {
		return ai.NewConfigError(err)
	}

	f, err := console.ParseFormat(format)
	if err != nil {
		return ai.NewConfigError(err)
	}

	con := console.New(cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr(), console.WithFormat(f))
	s, err := newSession(cfg, con, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	switch {
	case taskFinisher:
		return s.runTaskFinisher(ctx, query)
	case query != "":
		return s.runQuery(ctx, query)
	default:
		return s.runInteractive(ctx)
	}
}
