package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"ttcal/internal/config"
	appLog "ttcal/internal/log"
	"ttcal/internal/pipeline"
	"ttcal/internal/web"
)

const version = "0.1.0"

type flagConfig struct {
	configPath string
	listen     string
	once       bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	appLog.SetLevel(appLog.Level(conf.LogLevel))
	appLog.SetFormat(conf.LogFormat)
	appLog.Info("ttcal starting", "version", version)

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.Info("effective config",
		"source_dir", conf.SourceDir,
		"output_dir", conf.OutputDir,
		"remote_units", len(conf.Remote),
		"timezone", conf.Timezone.TZID,
		"term_weeks", conf.TermWeeks,
		"workers", conf.Workers,
		"listen", conf.Listen,
		"refresh", conf.RefreshCron,
		"once", flags.once,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner := pipeline.NewRunner(conf, nil)
	if _, err := runner.Run(ctx); err != nil {
		appLog.Error("generation failed", err)
		if flags.once {
			os.Exit(1)
		}
	}
	if flags.once {
		return
	}

	if err := serve(ctx, conf, runner); err != nil {
		appLog.Error("server stopped", err)
		os.Exit(1)
	}
	appLog.Info("ttcal exiting")
}

// serve regenerates on the configured cron schedule and serves the read API
// until ctx is cancelled.
func serve(ctx context.Context, conf *config.Config, runner *pipeline.Runner) error {
	loc, err := conf.FeedOptions().Location()
	if err != nil {
		return err
	}
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
	)
	_, err = c.AddFunc(conf.RefreshCron, func() {
		runCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
		defer cancel()
		if _, err := runner.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			appLog.Error("scheduled generation failed", err)
		}
	})
	if err != nil {
		return err
	}
	c.Start()
	defer func() {
		<-c.Stop().Done()
	}()
	appLog.Info("refresh scheduled", "refresh", conf.RefreshCron)

	return web.StartServer(ctx, conf, runner)
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/ttcal/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Generate all documents and feeds once and exit")

	flag.Parse()

	return cfg
}
