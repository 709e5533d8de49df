package main

import (
	"context"
	"encoding/json"
	"flag"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"storefront/internal/calendar"
	"storefront/internal/capture"
	"storefront/internal/config"
	appLog "storefront/internal/log"
	"storefront/internal/render"
	"storefront/internal/web"
)

type flagConfig struct {
	configPath  string
	listen      string
	once        bool
	capturePath string
}

func main() {
	appLog.Info("storefront starting", "version", "0.1.0")

	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", conf.Timezone,
		"refresh", conf.Refresh,
		"calendar_configured", conf.Calendar.Reference != "",
		"api_key_set", conf.Calendar.APIKey != "",
		"window_days", conf.Calendar.WindowDays,
		"expand_recurring", conf.Calendar.ExpandRecurring,
		"once", flags.once,
		"capture", flags.capturePath,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch {
	case flags.once:
		err = runOnce(ctx, conf)
	case flags.capturePath != "":
		err = runCapture(ctx, conf, flags.capturePath)
	default:
		err = runServer(ctx, conf)
	}
	if err != nil {
		appLog.Error("storefront failed", err)
		os.Exit(1)
	}
	appLog.Info("storefront exiting")
}

// runOnce performs a single load cycle and prints the rendered view.
func runOnce(ctx context.Context, conf *config.Config) error {
	loader := calendar.NewLoader(conf)
	state := loader.Load(ctx, time.Now())

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(render.Render(state, loader.Location()))
}

// runCapture serves the page on an ephemeral local port, screenshots it
// and exits.
func runCapture(ctx context.Context, conf *config.Config, outPath string) error {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}

	srv := web.NewServer(conf)
	srv.Refresh(ctx)

	serveCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- web.Serve(serveCtx, srv, ln) }()

	err = capture.CapturePagePNG(ctx, capture.Options{
		URL:        "http://" + ln.Addr().String() + "/",
		OutputPath: outPath,
	})
	stop()
	if serveErr := <-done; err == nil {
		err = serveErr
	}
	if err == nil {
		appLog.Info("page captured", "path", outPath)
	}
	return err
}

// runServer starts the HTTP server and the cron-driven refresh loop.
func runServer(ctx context.Context, conf *config.Config) error {
	srv := web.NewServer(conf)

	c := cron.New(cron.WithLocation(conf.Location()))
	if _, err := c.AddFunc(conf.Refresh, func() {
		appLog.Debug("scheduled calendar refresh")
		srv.Refresh(ctx)
	}); err != nil {
		appLog.Error("invalid refresh schedule; background refresh disabled", err, "refresh", conf.Refresh)
	}
	c.Start()
	defer func() {
		<-c.Stop().Done()
	}()

	go srv.Refresh(ctx)

	return web.StartServer(ctx, srv)
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/storefront/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Run one calendar load cycle, print the rendered view and exit")
	flag.StringVar(&cfg.capturePath, "capture", "", "Write a headless-browser PNG screenshot of the page to this path and exit")

	flag.Parse()

	return cfg
}
