package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"onesh/pkg/config"
	"onesh/pkg/engine"
	"onesh/pkg/log"
	"onesh/pkg/runner"

	"github.com/spf13/cobra"
)

type loggerKey struct{}

// ExitError carries a process exit code out of a command.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

const defaultConfigFile = "./onesh.yaml"

var (
	cfgFile    string
	logLevel   string
	engineName string
	toolName   string
	noPause    bool
	timeout    time.Duration
	logger     log.Logger
	// newEngine builds the engine a run executes in; tests replace it.
	newEngine = engine.New
	stdin     io.Reader = os.Stdin
	rootCmd             = &cobra.Command{
		Use:   "onesh",
		Short: "onesh runs one shell command and prints its output",
		Long: `onesh prompts for a single line of shell command text, executes it in an
embedded POSIX shell (or a host shell session with --engine host), prints every
line of output, and waits for a keypress before exiting.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := log.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			writer := cmd.ErrOrStderr()
			logger = log.NewSlogLogger(level, writer)
			ctx := context.WithValue(cmd.Context(), loggerKey{}, logger)
			cmd.SetContext(ctx)
			return nil
		},
		RunE: runOnce,
	}
)

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	os.Exit(exitCode(err, os.Stderr))
}

// exitCode reports err on w (unless it only carries a code) and maps it to a
// process exit code.
func exitCode(err error, w io.Writer) int {
	if err == nil {
		return runner.ExitOK
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	fmt.Fprintf(w, "Error: %v\n", err)
	return runner.ExitUsage
}

func runOnce(cmd *cobra.Command, args []string) error {
	logger := cmd.Context().Value(loggerKey{}).(log.Logger)

	cfg, err := loadConfig(cmd, logger)
	if err != nil {
		return err
	}
	if !cmd.Flags().Changed("log-level") && cfg.LogLevel != "" {
		level, err := log.ParseLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		logger = log.NewSlogLogger(level, cmd.ErrOrStderr())
	}

	eng, err := newEngine(cfg.Engine, cfg.EngineOptions(cmd.ErrOrStderr(), logger))
	if err != nil {
		return err
	}

	r := runner.New(eng,
		runner.WithIO(stdin, cmd.OutOrStdout(), cmd.ErrOrStderr()),
		runner.WithToolName(cfg.Prompt),
		runner.WithPause(cfg.Pause),
		runner.WithLogger(logger),
	)
	if code := r.Run(cmd.Context()); code != runner.ExitOK {
		return &ExitError{Code: code}
	}
	return nil
}

// loadConfig reads the config file and applies explicitly set flags on top.
// Only a missing default file is tolerated.
func loadConfig(cmd *cobra.Command, logger log.Logger) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if cmd.Flags().Changed("config") {
		cfg, err = config.Load(cfgFile, logger)
	} else {
		cfg, err = config.LoadOptional(cfgFile, logger)
	}
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("engine") {
		cfg.Engine = engineName
	}
	if flags.Changed("prompt") {
		cfg.Prompt = toolName
	}
	if flags.Changed("no-pause") {
		cfg.Pause = !noPause
	}
	if flags.Changed("timeout") {
		cfg.Timeout = timeout
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errs
	}
	return cfg, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", defaultConfigFile, "config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.Flags().StringVar(&engineName, "engine", engine.VirtualName, "Engine to execute the command with (virtual, host)")
	rootCmd.Flags().StringVar(&toolName, "prompt", "onesh", "Tool name shown in the input prompt")
	rootCmd.Flags().BoolVar(&noPause, "no-pause", false, "Exit without waiting for a keypress")
	rootCmd.Flags().DurationVar(&timeout, "timeout", 0, "Maximum execution time (0 means no limit)")
}
