package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sentilab/analyzer"
	"sentilab/config"
	"sentilab/db"
	"sentilab/logging"
)

var (
	cfgFile   string
	logLevel  string
	modelPath string

	cfg    *config.Config
	logger *zap.Logger

	rootCmd = &cobra.Command{
		Use:   "sentiment",
		Short: "Train and query the sentiment classifier offline",
		Long: `sentiment trains, inspects and queries the same model artifact the
API server uses. A server started with model.watch enabled reloads models
written by this tool automatically.`,
		SilenceUsage:      true,
		PersistentPreRunE: initConfig,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&modelPath, "model-path", "", "model artifact path override")

	rootCmd.AddCommand(trainCmd())
	rootCmd.AddCommand(predictCmd())
	rootCmd.AddCommand(infoCmd())
	rootCmd.AddCommand(historyCmd())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if logger != nil {
		logger.Sync()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig(_ *cobra.Command, _ []string) error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return err
	}
	if modelPath != "" {
		cfg.Storage.ModelPath = modelPath
	}

	logger, err = logging.New(cliLogConfig(cfg.Log, logLevel))
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	return nil
}

// cliLogConfig keeps stdout free for command output such as predict's JSON lines.
func cliLogConfig(base config.LogConfig, level string) config.LogConfig {
	base.Format = "console"
	base.Output = "stderr"
	if level != "" {
		base.Level = level
	}
	return base
}

// openAnalyzer builds an analyzer that records runs in the shared history db.
func openAnalyzer() (*analyzer.Analyzer, func(), error) {
	store, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, nil, err
	}
	a, err := analyzer.New(analyzer.ConfigFrom(cfg), logger, analyzer.WithRunStore(store))
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return a, func() { store.Close() }, nil
}
