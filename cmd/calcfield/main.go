// Command calcfield evaluates calculated custom fields from YAML record
// files or a SQLite store.
package main

import (
	"fmt"
	"os"

	"github.com/ZanzyTHEbar/calcfield"
	"github.com/ZanzyTHEbar/calcfield/internal/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	logLevel    string
	concurrency int
)

var rootCmd = &cobra.Command{
	Use:           "calcfield",
	Short:         "Evaluate calculated custom field formulas",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().IntVar(&concurrency, "concurrency", calcfield.DefaultConfig().BatchConcurrency, "Records calculated concurrently")
}

func newLogger(component string) (*logging.ZerologLogger, error) {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}
	return logging.NewZerologLogger(os.Stderr, level).With(component), nil
}

func newEngine() (*calcfield.Engine, error) {
	logger, err := newLogger("engine")
	if err != nil {
		return nil, err
	}
	cfg := calcfield.DefaultConfig()
	cfg.BatchConcurrency = concurrency
	return calcfield.New(calcfield.WithConfig(cfg), calcfield.WithLogger(logger))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "calcfield:", err)
		os.Exit(1)
	}
}
