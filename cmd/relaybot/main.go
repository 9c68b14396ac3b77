package main

import (
	"github.com/alecthomas/kong"

	"github.com/roelfdiedericks/relaybot/internal/config"
	. "github.com/roelfdiedericks/relaybot/internal/logging"
	"github.com/roelfdiedericks/relaybot/internal/paths"
)

const version = "0.3.0"

// Globals are flags shared by every command
type Globals struct {
	Config     string `help:"Path to relaybot.json (default: ./relaybot.json, then ~/.relaybot/relaybot.json)." type:"path" env:"RELAYBOT_CONFIG"`
	Debug      bool   `help:"Debug logging and per-request debug messages."`
	Token      string `help:"Telegram bot token." env:"TELEGRAM_BOT_TOKEN"`
	GeminiKey  string `help:"Gemini API key." env:"GEMINI_API_KEY"`
	MistralKey string `help:"Mistral API key." env:"MISTRAL_API_KEY"`
}

// CLI is the command tree
type CLI struct {
	Globals

	Run       RunCmd       `cmd:"" default:"1" help:"Run the Telegram bot."`
	Query     QueryCmd     `cmd:"" help:"Send one message through the provider chain and print the reply."`
	Providers ProvidersCmd `cmd:"" help:"List the provider catalog and credential status."`
	Version   VersionCmd   `cmd:"" help:"Show version."`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("relaybot"),
		kong.Description("Telegram relay to language-model providers with automatic failover."),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run(&cli.Globals))
}

// loadConfig resolves and loads the config, then layers flags and
// flag-bound environment on top. Returns the file path ("" when none).
func (g *Globals) loadConfig() (*config.Config, string, error) {
	path := g.Config
	if path == "" {
		var err error
		if path, err = paths.ConfigPath(); err != nil {
			return nil, "", err
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	if g.Token != "" {
		cfg.Telegram.BotToken = g.Token
	}
	err = cfg.MergeCredentials(map[string]string{
		"GEMINI_API_KEY":  g.GeminiKey,
		"MISTRAL_API_KEY": g.MistralKey,
	})
	if err != nil {
		return nil, "", err
	}
	if g.Debug {
		cfg.Debug = true
		cfg.LogLevel = "debug"
	}

	initLogging(cfg)
	if path != "" {
		L_debug("config: using file", "path", path)
	}
	return cfg, path, nil
}

func initLogging(cfg *config.Config) {
	level, _ := config.ParseLevel(cfg.LogLevel)
	logCfg := DefaultConfig()
	logCfg.Level = level
	logCfg.ShowCaller = level >= LevelDebug
	Init(logCfg)
	// config loading may already have initialized the logger with defaults
	SetLevel(level)
}
