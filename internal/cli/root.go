// Package cli wires the analyzer into a cobra command tree: an HTTP server,
// a one-shot batch runner, a directory watcher and an environment doctor.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joseph-ayodele/pdf-analyzer/internal/common"
)

var (
	configFile string
	logLevel   string
	logFormat  string

	v      *viper.Viper
	cfg    *common.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "pdf-analyzer",
	Short: "Check PDF documents against natural-language rules",
	Long: `pdf-analyzer extracts text from PDF documents (falling back to OCR for
scanned pages) and asks an LLM whether each supplied rule is satisfied.

Examples:
  pdf-analyzer serve                                 # HTTP API on :3000
  pdf-analyzer batch ./docs --rules "Has a signature" # one-shot run
  pdf-analyzer doctor                                # environment checks`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "config file (default ./pdf-analyzer.yaml)")
	pf.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&logFormat, "log-format", "", "log format: text or json")
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	var err error
	v, err = common.NewViper(configFile)
	if err != nil {
		return err
	}
	if f := cmd.Flags().Lookup("log-level"); f != nil {
		_ = v.BindPFlag("log_level", f)
	}
	if f := cmd.Flags().Lookup("log-format"); f != nil {
		_ = v.BindPFlag("log_format", f)
	}
	if bind, ok := flagBindings[cmd]; ok {
		for key, name := range bind {
			if f := cmd.Flags().Lookup(name); f != nil {
				_ = v.BindPFlag(key, f)
			}
		}
	}
	cfg = common.FromViper(v)
	logger = common.NewLogger(cmd.ErrOrStderr(), cfg.Log)
	slog.SetDefault(logger)
	return nil
}

// flagBindings maps per-command flags onto config keys so a flag overrides
// the file and environment only when set.
var flagBindings = map[*cobra.Command]map[string]string{}

func bindFlags(cmd *cobra.Command, keys map[string]string) {
	flagBindings[cmd] = keys
}

// ExitError carries a process exit code through cobra.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// Execute runs the command tree and returns the process exit code.
func Execute(ctx context.Context) int {
	rootCmd.SetContext(ctx)
	err := rootCmd.Execute()
	if err == nil {
		return 0
	}
	var exit *ExitError
	if errors.As(err, &exit) {
		if exit.Err != nil {
			fmt.Fprintln(os.Stderr, "Error:", exit.Err)
		}
		return exit.Code
	}
	fmt.Fprintln(os.Stderr, "Error:", common.UserMessage(err))
	return 1
}
