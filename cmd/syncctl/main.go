package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"frontsync/internal/app"
	"frontsync/internal/config"
	"frontsync/internal/upsert"
	"frontsync/pkg/logger"
)

var (
	configDir string
	logLevel  string
	dryRun    bool
)

var rootCmd = &cobra.Command{
	Use:   "syncctl",
	Short: "Operate the Front conversation sync engine",
	Long: `syncctl runs one-off syncs against the configured Front account and
inspects the local sync state (runs, health, circuit breaker, outbox).

Configuration is read from <config-dir>/base.yaml plus <config-dir>/<CONFIG_ENV>.yaml.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "config", "directory containing base.yaml")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log_level from config")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// withApp 加载配置并构建依赖，fn 返回后关闭连接
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return err
	}
	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	log := logger.NewLogger(level)
	defer log.Sync()

	ctx := cmd.Context()
	var a *app.App
	if dryRun {
		log.Info("Dry run: records are kept in memory and discarded on exit")
		a = app.NewDryRun(cfg, log)
	} else if a, err = app.New(ctx, cfg, log); err != nil {
		return err
	}
	defer a.Close()

	if err := fn(ctx, a); err != nil {
		log.Error("Command failed", zap.String("command", cmd.Name()), zap.Error(err))
		return err
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseSince 接受时间戳（ISO-8601 或 epoch 秒）或相对时长，如 "6h"
func parseSince(v string, now time.Time) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	if d, err := time.ParseDuration(v); err == nil {
		t := now.Add(-d).UTC()
		return &t, nil
	}
	t, err := upsert.ParseTimestamp(v)
	if err != nil {
		return nil, fmt.Errorf("invalid --since %q: %w", v, err)
	}
	return t, nil
}
