package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"eviproxy/internal/api"
	"eviproxy/internal/config"
	"eviproxy/internal/console"
	"eviproxy/internal/domain"
	"eviproxy/internal/downstream"
	"eviproxy/internal/events"
	"eviproxy/internal/logging"
	"eviproxy/internal/metrics"
	"eviproxy/internal/ports"
	"eviproxy/internal/recording"
	"eviproxy/internal/upstream"
	"eviproxy/internal/usecase"
)

const shutdownGrace = 5 * time.Second

// Options selects the process streams. Zero values fall back to os.Stdin and
// os.Stderr.
type Options struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Services is the assembled runtime graph.
type Services struct {
	Config  config.Config
	Logger  zerolog.Logger
	Proxy   *usecase.Proxy
	Link    *downstream.Link
	Hub     *api.Hub
	Metrics *metrics.Metrics
	Console *console.Console
	Router  *echo.Echo

	APIQueue      *events.Queue
	InternalQueue *events.Queue
	ConsoleQueue  *events.Queue

	logCloser io.Closer
}

// Build wires all runtime dependencies for cfg. The console is only built
// when cfg.Console.Enabled is set; log output then goes to its buffer.
func Build(cfg config.Config, opts Options) (*Services, error) {
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	var logs *console.LogBuffer
	logOut := opts.Stderr
	if cfg.Console.Enabled {
		logs = console.NewLogBuffer(0)
		logOut = logs
	}
	logger, logCloser, err := logging.New(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File}, logOut)
	if err != nil {
		return nil, err
	}

	apiQueue := events.NewQueue("api")
	internalQueue := events.NewQueue("internal")
	consoleQueue := events.NewQueue("console")

	hub := api.NewHub(domain.InitialState())
	meter := metrics.New("")
	observers := []ports.StateObserver{hub}

	var con *console.Console
	if cfg.Console.Enabled {
		con = console.New(console.Options{
			Sink:      consoleQueue,
			Logs:      logs,
			ClientURL: clientURL(cfg),
			Input:     opts.Stdin,
			Output:    opts.Stdout,
		})
		observers = append(observers, con)
	}

	proxy := usecase.NewProxy(usecase.Config{
		Events:   events.NewMultiplexer(apiQueue, internalQueue, consoleQueue, events.DefaultIdle),
		Internal: internalQueue,
		Store:    recording.NewStore(logger),
		Upstreams: upstream.Factory{
			Live: upstream.LiveConfig{
				BaseURL:            cfg.Hume.BaseURL,
				APIKey:             cfg.Hume.APIKey,
				ConfigID:           cfg.Hume.ConfigID,
				ResumedChatGroupID: cfg.Hume.ChatGroupID,
			},
			PlaybackDelay: cfg.Playback.Delay,
			Logger:        logger,
		},
		Observers:   observers,
		Metrics:     meter,
		Logger:      logger,
		AutoAdvance: cfg.Playback.AutoAdvance,
	})

	link := downstream.New(downstream.Options{
		Admission: proxy.Admission,
		Listener:  proxy,
		Logger:    logger,
	})
	proxy.AttachDownstream(link)

	services := &Services{
		Config:        cfg,
		Logger:        logger,
		Proxy:         proxy,
		Link:          link,
		Hub:           hub,
		Metrics:       meter,
		Console:       con,
		APIQueue:      apiQueue,
		InternalQueue: internalQueue,
		ConsoleQueue:  consoleQueue,
		logCloser:     logCloser,
	}
	services.Router = newRouter(services, logger)

	if err := cfg.Validate(); err != nil {
		logger.Warn().Err(err).Msg("record mode will not be able to reach the backend")
	}
	return services, nil
}

func newRouter(s *Services, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	api.NewHandler(s.APIQueue, s.Hub, logger).Register(e, "/api")
	e.GET(s.Config.Server.WSPath, echo.WrapHandler(s.Link))
	e.GET("/metrics", echo.WrapHandler(s.Metrics.Handler()))
	e.GET("/*", uiHandler(s.Config.Server.UIDir))
	return e
}

// uiHandler serves the built web UI. Without an index.html it answers every
// request with a build hint.
func uiHandler(dir string) echo.HandlerFunc {
	files := http.FileServer(http.Dir(dir))
	return func(c echo.Context) error {
		if _, err := os.Stat(filepath.Join(dir, "index.html")); err != nil {
			return c.String(http.StatusNotFound, fmt.Sprintf("UI not found: %s/index.html is missing. Build the web UI into %s first.", dir, dir))
		}
		files.ServeHTTP(c.Response(), c.Request())
		return nil
	}
}

func clientURL(cfg config.Config) string {
	return fmt.Sprintf("ws://localhost:%d%s", cfg.Server.Port, cfg.Server.WSPath)
}

// Run serves HTTP, runs the event loop and, when enabled, the console until
// the loop terminates or ctx is done. The HTTP server is shut down last.
func (s *Services) Run(ctx context.Context) error {
	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()
	group, groupCtx := errgroup.WithContext(loopCtx)

	// Request contexts end with the group so open event streams let
	// Shutdown finish.
	server := &http.Server{
		Addr:              s.Config.Addr(),
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return groupCtx },
	}

	group.Go(func() error {
		s.Logger.Info().Str("addr", server.Addr).Str("client_url", clientURL(s.Config)).Msg("proxy listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		err := s.Proxy.Run(groupCtx)
		// terminate ends the whole process, not just the loop.
		stopLoop()
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	})

	if s.Console != nil {
		group.Go(func() error {
			if err := s.Console.Run(groupCtx); err != nil {
				return fmt.Errorf("console: %w", err)
			}
			return nil
		})
	}

	err := group.Wait()
	s.Logger.Info().Msg("proxy stopped")
	return err
}

// Close releases the log file, if any.
func (s *Services) Close() error {
	if s.logCloser == nil {
		return nil
	}
	return s.logCloser.Close()
}
