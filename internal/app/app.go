package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/aymanshehab/imgfetch/internal/adapter/dsadapter"
	"github.com/aymanshehab/imgfetch/internal/config"
	"github.com/aymanshehab/imgfetch/internal/entity"
	"github.com/aymanshehab/imgfetch/internal/fetcher"
	httphandler "github.com/aymanshehab/imgfetch/internal/handler/http"
	"github.com/aymanshehab/imgfetch/internal/pause"
	"github.com/aymanshehab/imgfetch/internal/repository/history"
	"github.com/aymanshehab/imgfetch/internal/service/runner"
	"github.com/aymanshehab/imgfetch/internal/storage/logbuf"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"
)

const shutdownTimeout = 5 * time.Second

// HistoryRepository is what the app needs from the run-history store:
// recording for the runner, reading for the handler.
type HistoryRepository interface {
	runner.HistoryRecorder
	httphandler.HistoryService
}

type App struct {
	cfgPath string
	cfg     *config.Config
	srv     *http.Server
	runner  *runner.Runner
	logs    *logbuf.Buffer
	history HistoryRepository
	log     *slog.Logger
}

func New(cfgPath string) *App {
	return &App{
		cfgPath: cfgPath,
	}
}

func (a *App) init() {
	a.cfg = config.MustLoad(a.cfgPath)

	lo := &slog.HandlerOptions{}
	switch a.cfg.LogLevel {
	case config.LogLevelInfo:
		lo.Level = slog.LevelInfo
	case config.LogLevelWarn:
		lo.Level = slog.LevelWarn
	case config.LogLevelError:
		lo.Level = slog.LevelError
	case config.LogLevelDebug:
		lo.Level = slog.LevelDebug
	default:
		panic("unknown log level")
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, lo))
	a.log = log

	if a.cfg.RedisURL != "" {
		opt, err := redis.ParseURL(a.cfg.RedisURL)
		if err != nil {
			panic(err)
		}

		rdb := redis.NewClient(opt)
		if _, err := rdb.Ping(context.Background()).Result(); err != nil {
			panic(err)
		}

		a.history = history.NewHistoryRepository(rdb, log)
	}

	gate := pause.NewGate()
	a.logs = logbuf.NewBuffer(a.cfg.LogTail)

	adapter := dsadapter.NewDatasetAdapter(log)
	f := fetcher.NewFetcher(&a.cfg.Fetcher, gate, log)

	a.runner = runner.NewRunner(&a.cfg.Run, afero.NewOsFs(), gate, adapter, f,
		newEventSink(a.logs, log), a.history, log)
}

func (a *App) Start() {
	a.init()

	http.Handle("POST /run/{$}", httphandler.NewRunHandler(a.runner, a.log))
	http.Handle("POST /pause/{$}", httphandler.NewPauseHandler(a.runner, a.log))
	http.Handle("POST /resume/{$}", httphandler.NewResumeHandler(a.runner, a.log))
	http.Handle("GET /status/{$}", httphandler.NewStatusHandler(a.runner, a.log))
	http.Handle("GET /logs/{$}", httphandler.NewLogsHandler(a.logs, a.log))

	if a.history != nil {
		http.Handle("GET /history/{$}", httphandler.NewHistoryHandler(a.history, a.log))
	}

	a.srv = &http.Server{
		Addr: a.cfg.Listen,
	}

	go func() {
		a.log.Info("Start listen", slog.String("addr", a.cfg.Listen))

		if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Error("Could not serve", slog.String("listen_addr", a.cfg.Listen), slog.Any("error", err))
			os.Exit(2)
		}
	}()
}

// RunOnce executes a single batch synchronously and returns once it is
// back to idle. Used by the -once flag; no server is started.
func (a *App) RunOnce(ctx context.Context) error {
	a.init()

	done := make(chan struct{}, 1)
	a.runner.AddStateListener(func(state entity.RunState) {
		if state == entity.RunStateIdle {
			select {
			case done <- struct{}{}:
			default:
			}
		}
	})

	if _, err := a.runner.StartRun(ctx); err != nil {
		return fmt.Errorf("cannot start run: %w", err)
	}

	<-done

	snap := a.runner.Snapshot()
	if snap.LastRun != nil && snap.LastRun.SetupError != "" {
		return fmt.Errorf("run setup failed: %s", snap.LastRun.SetupError)
	}

	return nil
}

// StartRun kicks off a batch from a signal. Refusals are logged, not
// fatal.
func (a *App) StartRun() {
	if _, err := a.runner.StartRun(context.Background()); err != nil {
		a.log.Warn("Cannot start run", slog.Any("error", err))
	}
}

// TogglePause flips between Running and Paused; a no-op while idle.
func (a *App) TogglePause() {
	switch a.runner.State() {
	case entity.RunStateRunning:
		a.runner.Pause()
	case entity.RunStatePaused:
		a.runner.Resume()
	}
}

func (a *App) Stop() {
	if a.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		a.srv.Shutdown(ctx)
	}

	if a.runner != nil {
		a.runner.Close()
	}
}
