// Package app wires the bot together and owns its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"jokebot/internal/config"
	"jokebot/internal/jokes"
	"jokebot/internal/platform"
	"jokebot/internal/reply"
	"jokebot/internal/runtime/supervisor"
	"jokebot/internal/storage"
	"jokebot/internal/task/scheduler"
	logx "jokebot/pkg/logx"
	"jokebot/pkg/systemd"
)

const shutdownTimeout = 15 * time.Second

// Watcher reports config file changes until ctx is done.
type Watcher interface {
	Watch(ctx context.Context) error
}

// Deps are the collaborators App drives.
type Deps struct {
	Backend  storage.Backend
	Boards   jokes.BoardAPI
	Mentions platform.MentionSource
	Stream   platform.Stream

	// Watcher is optional.
	Watcher  Watcher
	Notifier systemd.Notifier
}

type App struct {
	cfg *config.Config
	log logx.Logger

	state      *State
	scanner    *reply.Scanner
	syncer     *jokes.Syncer
	dispatcher *reply.Dispatcher
	sched      *scheduler.Service
	sup        *supervisor.Supervisor

	stream  platform.Stream
	watcher Watcher
	notify  systemd.Notifier

	started time.Time
}

// New loads persisted state through deps.Backend and builds every
// component. The backend is closed if construction fails.
func New(ctx context.Context, cfg *config.Config, deps Deps, log logx.Logger) (_ *App, err error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if deps.Backend == nil || deps.Boards == nil || deps.Stream == nil {
		return nil, errors.New("app: backend, boards and stream are required")
	}
	defer func() {
		if err != nil {
			_ = deps.Backend.Close()
		}
	}()

	state, err := NewState(ctx, cfg, deps.Backend, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	filter, err := reply.NewFilter(cfg.IgnoredSet(), cfg.Phrases, cfg.Patterns)
	if err != nil {
		return nil, err
	}
	tmpl, err := reply.ParseTemplate(cfg.ReplyTemplate)
	if err != nil {
		return nil, err
	}
	taskTimeout, err := config.ParseDurationOrDefault("task_timeout", cfg.TaskTimeout, 0)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:     cfg,
		log:     log.With(logx.String("comp", "app")),
		state:   state,
		stream:  deps.Stream,
		watcher: deps.Watcher,
		notify:  deps.Notifier,
	}
	a.scanner = reply.NewScanner(state.Ledger, state.Queue, filter, deps.Mentions, log.With(logx.String("comp", "scanner")))
	a.scanner.RequireTrigger = cfg.Mentions.RequireTrigger
	a.syncer = jokes.NewSyncer(deps.Boards, cfg.Trello.Boards, state.Snapshot, state.Catalog, log.With(logx.String("comp", "trello")))
	a.dispatcher = reply.NewDispatcher(state.Queue, state.Catalog, tmpl, state.Ledger, log.With(logx.String("comp", "reply")))
	a.dispatcher.DryRun = cfg.Reddit.DryRun

	tasks := buildTasks(cfg, func(d taskDef) func(context.Context) error { return d.build(a) })
	a.sched, err = scheduler.New(scheduler.Config{DefaultTimeout: taskTimeout}, tasks, log.With(logx.String("comp", "scheduler")))
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) State() *State { return a.state }

func (a *App) Scheduler() *scheduler.Service { return a.sched }

// Run starts the periodic tasks and consumes the comment stream on the
// calling goroutine until the stream ends or ctx is done. It then stops
// the tasks, flushes state, and closes the store.
func (a *App) Run(ctx context.Context) error {
	a.started = time.Now()
	a.state.Store.Seal()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	sup := supervisor.NewSupervisor(ctx, supervisor.WithLogger(a.log))
	a.sup = sup

	a.sched.Start(sup.Context())
	if a.watcher != nil {
		sup.Go("config.watch", a.watcher.Watch)
	}
	if wd := systemd.WatchdogInterval(); wd > 0 && config.Interval(a.cfg.Rates.Uptime) > wd/2 {
		a.log.Warn("uptime rate is too slow for the systemd watchdog", logx.Duration("watchdog", wd), logx.Int("rates.uptime", a.cfg.Rates.Uptime))
	}
	if err := a.notify.Ready(); err != nil {
		a.log.Warn("systemd ready notify failed", logx.Err(err))
	}
	a.log.Info("bot started", logx.Int("jokes", a.state.Catalog.Len()), logx.Int("groups", len(a.sched.Groups())))

	runErr := a.consume(ctx)

	a.log.Info("shutting down")
	_ = a.notify.Stopping()
	if err := a.stream.Close(); err != nil {
		a.log.Warn("stream close failed", logx.Err(err))
	}
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()
	if err := a.sched.Stop(stopCtx); err != nil {
		a.log.Warn("scheduler stop", logx.Err(err))
	}
	if err := sup.Stop(stopCtx); err != nil {
		a.log.Warn("supervisor stop", logx.Err(err))
	}
	if err := a.state.Store.Close(stopCtx); err != nil {
		a.log.Error("final flush failed", logx.Err(err))
		runErr = errors.Join(runErr, err)
	}
	a.log.Info("bot stopped", logx.Duration("uptime", time.Since(a.started).Truncate(time.Second)))
	return runErr
}

// consume feeds streamed comments to the scanner. The stop signal is
// checked before every item.
func (a *App) consume(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		item, err := a.stream.Next(ctx)
		switch {
		case err == nil:
			a.scanner.ScanComment(item)
		case errors.Is(err, io.EOF):
			a.log.Info("comment stream ended")
			return nil
		case ctx.Err() != nil:
			return nil
		default:
			return fmt.Errorf("comment stream: %w", err)
		}
	}
}
