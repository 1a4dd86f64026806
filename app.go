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

	"github.com/spf13/cobra"

	"eviproxy/internal/bootstrap"
	"eviproxy/internal/config"
	"eviproxy/internal/console"
)

var version = "0.1.0"

type appFlags struct {
	configFile      string
	envFile         string
	port            int
	wsPath          string
	uiDir           string
	logLevel        string
	logFile         string
	noConsole       bool
	autoAdvance     bool
	playbackDelayMS int
}

type runner interface {
	Run(ctx context.Context) error
	Close() error
}

// App is the command-line application root.
type App struct {
	stdin  *os.File
	stdout io.Writer
	stderr io.Writer
	flags  appFlags

	build func(config.Config, bootstrap.Options) (runner, error)
}

func NewApp(stdin *os.File, stdout, stderr io.Writer) *App {
	return &App{
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		build: func(cfg config.Config, opts bootstrap.Options) (runner, error) {
			return bootstrap.Build(cfg, opts)
		},
	}
}

// Command returns the root command. Flags override the env file, the config
// file and environment variables.
func (a *App) Command() *cobra.Command {
	root := &cobra.Command{
		Use:   "evi-proxy",
		Short: "Record and replay EVI chat sessions",
		Long: `evi-proxy sits between a chat client and the EVI backend.

Record mode relays a live session and captures every backend message.
Playback mode replays a saved recording to the client and can inject
errors and disconnects on demand.

Control it from the terminal menu, or over HTTP:
  POST /api   enqueue an event
  GET  /api   stream state as Server-Sent Events`,
		SilenceUsage: true,
		RunE:         a.run,
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	flags := root.Flags()
	flags.StringVar(&a.flags.configFile, "config", "", "YAML config file (default $EVI_PROXY_CONFIG)")
	flags.StringVar(&a.flags.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	flags.IntVarP(&a.flags.port, "port", "p", 3000, "HTTP listen port")
	flags.StringVar(&a.flags.wsPath, "ws-path", "/v0/evi/chat", "path clients connect to")
	flags.StringVar(&a.flags.uiDir, "ui-dir", "out", "directory with the built web UI")
	flags.StringVar(&a.flags.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flags.StringVar(&a.flags.logFile, "log-file", "", "also write logs to this file")
	flags.BoolVar(&a.flags.noConsole, "no-console", false, "disable the terminal menu")
	flags.BoolVar(&a.flags.autoAdvance, "auto-advance", false, "advance playback on every client message")
	flags.IntVar(&a.flags.playbackDelayMS, "playback-delay", 200, "playback reply delay in milliseconds")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "evi-proxy v%s\n", version)
		},
	})
	return root
}

func (a *App) run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(config.Options{EnvFile: a.flags.envFile, ConfigFile: a.flags.configFile})
	if err != nil {
		return err
	}
	cfg = applyFlags(cmd.Flags().Changed, a.flags, cfg)
	if cfg.Console.Enabled && (a.stdin == nil || !console.Enabled(a.stdin)) {
		cfg.Console.Enabled = false
	}

	services, err := a.build(cfg, bootstrap.Options{Stdin: a.stdin, Stdout: a.stdout, Stderr: a.stderr})
	if err != nil {
		return err
	}
	defer services.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return services.Run(ctx)
}

// applyFlags copies explicitly set flags over cfg.
func applyFlags(changed func(name string) bool, f appFlags, cfg config.Config) config.Config {
	if changed("port") && f.port > 0 && f.port <= 65535 {
		cfg.Server.Port = f.port
	}
	if changed("ws-path") && strings.TrimSpace(f.wsPath) != "" {
		cfg.Server.WSPath = strings.TrimSpace(f.wsPath)
		if !strings.HasPrefix(cfg.Server.WSPath, "/") {
			cfg.Server.WSPath = "/" + cfg.Server.WSPath
		}
	}
	if changed("ui-dir") {
		cfg.Server.UIDir = f.uiDir
	}
	if changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if changed("log-file") {
		cfg.Log.File = f.logFile
	}
	if changed("no-console") && f.noConsole {
		cfg.Console.Enabled = false
	}
	if changed("auto-advance") {
		cfg.Playback.AutoAdvance = f.autoAdvance
	}
	if changed("playback-delay") && f.playbackDelayMS >= 0 {
		cfg.Playback.Delay = time.Duration(f.playbackDelayMS) * time.Millisecond
	}
	return cfg
}
