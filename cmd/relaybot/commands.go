package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/roelfdiedericks/relaybot/internal/config"
	"github.com/roelfdiedericks/relaybot/internal/cron"
	"github.com/roelfdiedericks/relaybot/internal/gateway"
	"github.com/roelfdiedericks/relaybot/internal/llm"
	. "github.com/roelfdiedericks/relaybot/internal/logging"
	"github.com/roelfdiedericks/relaybot/internal/metrics"
	"github.com/roelfdiedericks/relaybot/internal/paths"
	"github.com/roelfdiedericks/relaybot/internal/telegram"
)

const (
	shutdownTimeout = 15 * time.Second
	statusJob       = "status-report"
)

// newController builds the catalog and controller from config
func newController(cfg *config.Config, timers *cron.Timers) (*llm.Controller, error) {
	catalog, err := cfg.Catalog()
	if err != nil {
		return nil, err
	}
	return llm.NewController(cfg.ControllerOptions(catalog, timers))
}

type RunCmd struct{}

func (r *RunCmd) Run(g *Globals) error {
	cfg, cfgPath, err := g.loadConfig()
	if err != nil {
		return err
	}
	if cfg.Telegram.BotToken == "" {
		return fmt.Errorf("telegram bot token not configured (set TELEGRAM_BOT_TOKEN or telegram.botToken)")
	}
	L_info("relaybot %s starting", version)

	timers := cron.NewTimers()
	defer timers.Stop()

	controller, err := newController(cfg, timers)
	if err != nil {
		return err
	}
	if !controller.Configured() {
		L_warn("no provider credentials configured; every message will get the setup notice")
	}

	if cfg.MetricsEnabled() {
		dbPath, err := paths.MetricsDBPath()
		if err == nil {
			err = metrics.GetInstance().Open(dbPath)
		}
		if err != nil {
			L_warn("metrics: persistence disabled", "error", err)
		}
		defer metrics.GetInstance().Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gw := gateway.New(controller, gateway.Options{
		QueueEnabled:     cfg.QueueEnabled(),
		Workers:          cfg.Queue.Workers,
		Capacity:         cfg.Queue.Capacity,
		ThrottleCooldown: cfg.ThrottleCooldown(),
		Debug:            cfg.Debug,
	})
	gw.Start(ctx)
	defer gw.Stop(shutdownTimeout)

	jobs := cron.NewService()
	if err := jobs.SetJob(statusJob, cfg.Status.Interval, gw.LogStatus); err != nil {
		return err
	}
	if cfg.MetricsEnabled() {
		err := jobs.AddJob("metrics-save", cfg.Metrics.SaveInterval, func() {
			if err := metrics.GetInstance().Save(); err != nil {
				L_warn("metrics: periodic save failed", "error", err)
			}
		})
		if err != nil {
			return err
		}
	}
	jobs.Start()
	defer jobs.Stop()
	L_debug("cron: jobs scheduled", "jobs", strings.Join(jobs.Jobs(), ","))

	if cfgPath != "" {
		watcher, err := config.Watch(cfgPath, func(next *config.Config) {
			// --debug outlives reloads
			gw.SetDebug(next.Debug || g.Debug)
			if level, ok := config.ParseLevel(next.LogLevel); ok && !g.Debug {
				SetLevel(level)
			}
			if err := jobs.SetJob(statusJob, next.Status.Interval, gw.LogStatus); err != nil {
				L_warn("config: status interval not applied", "error", err)
			}
		})
		if err != nil {
			L_warn("config: hot reload disabled", "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	bot, err := telegram.New(cfg.Telegram.BotToken, gw)
	if err != nil {
		return err
	}
	bot.Start()
	L_info("relaybot ready", "active", controller.Active().Name, "queue", cfg.QueueEnabled())

	<-ctx.Done()
	SetShuttingDown()
	bot.Stop()
	return nil
}

type QueryCmd struct {
	Text     string `arg:"" optional:"" help:"Message text (read from stdin when omitted)."`
	Provider string `help:"Force this provider as the starting point."`
}

// messageText returns the argument, or piped stdin when no argument was given
func (q *QueryCmd) messageText() (string, error) {
	if q.Text != "" {
		return q.Text, nil
	}
	if term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("no message: pass it as an argument or pipe it on stdin")
	}
	data, err := io.ReadAll(io.LimitReader(os.Stdin, 64*1024))
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("no message on stdin")
	}
	return text, nil
}

func (q *QueryCmd) Run(g *Globals) error {
	text, err := q.messageText()
	if err != nil {
		return err
	}
	cfg, _, err := g.loadConfig()
	if err != nil {
		return err
	}
	timers := cron.NewTimers()
	defer timers.Stop()

	controller, err := newController(cfg, timers)
	if err != nil {
		return err
	}
	if q.Provider != "" {
		if err := controller.Select(q.Provider); err != nil {
			return err
		}
	}

	res, err := controller.Query(context.Background(), text)
	if res != nil {
		if note := res.Annotation(); note != "" {
			fmt.Println(noticeStyle.Render(strings.TrimRight(note, "\n")))
		}
	}
	if err != nil {
		fmt.Println(llm.FormatErrorForUser(err))
		return err
	}
	fmt.Println(res.Text)
	return nil
}

type ProvidersCmd struct{}

func (p *ProvidersCmd) Run(g *Globals) error {
	cfg, _, err := g.loadConfig()
	if err != nil {
		return err
	}
	catalog, err := cfg.Catalog()
	if err != nil {
		return err
	}

	fmt.Println(providerTable(catalog.Providers(), func(key string) bool {
		return cfg.Credential(key) != ""
	}))
	return nil
}

type VersionCmd struct{}

func (v *VersionCmd) Run() error {
	fmt.Printf("relaybot %s\n", version)
	return nil
}
