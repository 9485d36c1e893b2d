package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/dshills/triad/internal/config"
	"github.com/dshills/triad/internal/engine"
	"github.com/dshills/triad/internal/output"
)

const version = "0.1.0"

// Exit codes
const (
	ExitSuccess      = 0
	ExitBlocked      = 1
	ExitUsageError   = 2
	ExitConfigError  = 3
	ExitRuntimeError = 4
)

var (
	flagVerbose bool
	flagEnvFile string
)

var (
	ui = output.NewUI()
	// engineOpts are appended to every engine the CLI builds.
	engineOpts []engine.Option
)

var rootCmd = &cobra.Command{
	Use:   "triad",
	Short: "Three-agent AI code review",
	Long: "Triad reviews a code change with three agents: a senior developer checks quality,\n" +
		"a security engineer checks vulnerabilities against OWASP guidance, and a tech lead\n" +
		"weighs both reports and makes the merge decision.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ui.Verbose = flagVerbose
		return config.LoadDotEnv(flagEnvFile)
	},
}

// Run executes the root command and returns an exit code.
func Run() int {
	exitCode = ExitSuccess
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error
		return ExitUsageError
	}
	return exitCode
}

// exitCode is set by command handlers to control the process exit code.
var exitCode = ExitSuccess

// newLogger returns a stderr logger. Verbose lowers the level to debug.
func newLogger(level slog.Level) *slog.Logger {
	if flagVerbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(ui.ErrOut, &slog.HandlerOptions{Level: level}))
}

func newEngine(logger *slog.Logger, opts ...engine.Option) *engine.Engine {
	all := append([]engine.Option{engine.WithLogger(logger)}, opts...)
	return engine.New(append(all, engineOpts...)...)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print triad version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(ui.Out, "triad version %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().StringVar(&flagEnvFile, "env-file", ".env", "Load environment variables from this file if it exists")

	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(versionCmd)
}

// setExitForError maps an error to an exit code and reports it.
func setExitForError(err error) {
	ui.Error("%v", err)
	exitCode = exitCodeFor(err)
}
