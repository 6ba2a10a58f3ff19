// Command invoicex extracts invoice fields from documents and reports how far each value can be trusted.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joseph-ayodele/invoice-trust/internal/app"
	"github.com/joseph-ayodele/invoice-trust/internal/common"
	"github.com/joseph-ayodele/invoice-trust/internal/rules"
)

// version is set at build time via ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "invoicex",
	Short: "Multi-strategy invoice field extraction with trust scoring",
	Long: `invoicex runs several text-extraction strategies over each invoice, picks the
most confident text, parses the configured fields, validates them and scores
how far the resulting record can be trusted.

Settings come from flags, INVOICEX_* environment variables and an optional
invoicex.yaml; backend credentials (OPENAI_API_KEY, AZURE_VISION_KEY, ...) are
read from the environment or a .env file.`,
	SilenceUsage: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ./invoicex.yaml or ~/.config/invoicex/config.yaml)")
	pf.String("rules", "", "rules YAML file (default: embedded GST invoice rules)")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.Int("workers", 0, "documents processed in parallel (default INVOICEX_WORKERS or 4)")

	for _, key := range []string{"rules", "log-level", "workers"} {
		_ = viper.BindPFlag(key, pf.Lookup(key))
	}
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("invoicex")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "invoicex"))
		}
	}

	viper.SetEnvPrefix("INVOICEX")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func newLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(viper.GetString("log-level"))); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// loadConfig reads the service config from the environment and applies viper overrides.
func loadConfig() (*common.Config, error) {
	cfg := common.LoadConfig()
	if p := viper.GetString("rules"); p != "" {
		cfg.Engine.RulesPath = p
	}
	if n := viper.GetInt("workers"); n > 0 {
		cfg.Engine.Workers = n
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildEngine loads config and rules and wires the processor.
func buildEngine(ctx context.Context, logger *slog.Logger) (*common.Config, *app.Engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	rs, err := rules.Load(cfg.Engine.RulesPath)
	if err != nil {
		return nil, nil, err
	}
	eng, err := app.Build(ctx, cfg, rs, logger)
	if err != nil {
		return nil, nil, err
	}
	return cfg, eng, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
