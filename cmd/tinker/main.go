package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"tinker/internal/config"
	googlesrc "tinker/internal/google"
	"tinker/internal/ics"
	appLog "tinker/internal/log"
	"tinker/internal/raster"
	"tinker/internal/render"
	"tinker/internal/snapshot"
	"tinker/internal/weather"
	"tinker/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	once       bool
	outPath    string
}

func main() {
	// Secrets (weather API key) come from the environment; a local .env is
	// honored but optional.
	_ = godotenv.Load()

	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))
	appLog.Info("tinker starting",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"calendar_provider", conf.Calendar.Provider,
		"viewport", conf.Render.Width,
		"refresh", conf.RefreshCron,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	builder := buildAggregator(ctx, conf)

	renderer, err := render.New()
	if err != nil {
		// A broken template is a configuration error; there is nothing to
		// serve without it.
		appLog.Error("template validation failed", err)
		os.Exit(1)
	}

	pipeline := raster.NewPipeline(raster.Options{
		Timeout:       time.Duration(conf.Render.TimeoutSeconds) * time.Second,
		SettleDelay:   time.Duration(conf.Render.SettleMillis) * time.Millisecond,
		Mono:          conf.Render.Mono,
		MaxConcurrent: conf.Render.MaxConcurrent,
	})

	server := web.NewServer(conf, builder, renderer, pipeline)

	if flags.once {
		if err := runOnce(ctx, server, flags.outPath); err != nil {
			appLog.Error("single-shot render failed", err)
			os.Exit(1)
		}
		return
	}

	// Warm the render cache on a schedule so device polls hit memory.
	var sched *cron.Cron
	if conf.RefreshCron != "" {
		sched = cron.New()
		_, err := sched.AddFunc(conf.RefreshCron, func() {
			warmCtx, warmCancel := context.WithTimeout(ctx, 2*time.Minute)
			defer warmCancel()
			if err := server.WarmRender(warmCtx); err != nil {
				appLog.Error("warm render failed", err)
			}
		})
		if err != nil {
			appLog.Error("invalid refresh cron expression", err, "refresh", conf.RefreshCron)
			os.Exit(1)
		}
		sched.Start()
		defer sched.Stop()
	}

	httpServer := &http.Server{
		Addr:    conf.Listen,
		Handler: server.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	appLog.Info("HTTP server listening", "listen", "http://"+conf.Listen)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		appLog.Error("HTTP server failed", err)
		os.Exit(1)
	}

	appLog.Info("tinker exiting")
}

// buildAggregator wires the three upstream sources from config. A source
// that cannot be constructed degrades its dashboard section instead of
// aborting startup; the panel still shows everything else.
func buildAggregator(ctx context.Context, conf *config.Config) *snapshot.Builder {
	var events snapshot.EventSource
	var tasks snapshot.TaskSource

	switch conf.Calendar.Provider {
	case "ics":
		if len(conf.Calendar.ICSURLs) > 0 {
			events = ics.NewSource(conf.Calendar.ICSURLs, conf.Calendar.HorizonDays)
		} else {
			appLog.Info("no ICS feeds configured; calendar section disabled")
		}
	default:
		client, err := googlesrc.NewClient(ctx, googlesrc.Credentials{
			CredentialsFile: conf.Google.CredentialsFile,
			TokenFile:       conf.Google.TokenFile,
		})
		if err != nil {
			appLog.Error("google client unavailable; calendar and tasks sections disabled", err)
		} else {
			events = client
			tasks = client
		}
	}

	var forecast snapshot.ForecastSource
	apiKey := os.Getenv("PIRATE_WEATHER_API_KEY")
	if apiKey == "" {
		appLog.Info("PIRATE_WEATHER_API_KEY not set; weather section disabled")
	} else {
		forecast = weather.NewClient(apiKey)
	}

	return snapshot.NewBuilder(events, tasks, forecast)
}

// runOnce performs a single render with the configured defaults and writes
// the BMP to outPath (or stdout). Useful for cron-driven setups and for
// checking layout changes without a device.
func runOnce(ctx context.Context, server *web.Server, outPath string) error {
	res, err := server.RenderDefault(ctx)
	if err != nil {
		return err
	}

	if outPath == "" || outPath == "-" {
		_, err = os.Stdout.Write(res.BMP)
		return err
	}
	return os.WriteFile(outPath, res.BMP, 0o644)
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/tinker/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Render one bitmap and exit")
	flag.StringVar(&cfg.outPath, "out", "", "Output path for -once (default stdout)")

	flag.Parse()

	return cfg
}
