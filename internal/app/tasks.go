package app

import (
	"context"
	"time"

	"jokebot/internal/config"
	"jokebot/internal/dedup"
	"jokebot/internal/task/scheduler"
	logx "jokebot/pkg/logx"
)

// taskDef is one row of the static task table.
type taskDef struct {
	name  string
	rate  func(config.RatesConfig) int
	build func(a *App) func(ctx context.Context) error
}

// taskTable lists every periodic task. The comment stream is not here: it
// runs on the goroutine that calls Run.
var taskTable = []taskDef{
	{
		name:  "mentions",
		rate:  func(r config.RatesConfig) int { return r.Mentions },
		build: func(a *App) func(context.Context) error { return a.scanner.ScanMentions },
	},
	{
		name:  "trello",
		rate:  func(r config.RatesConfig) int { return r.Trello },
		build: func(a *App) func(context.Context) error { return a.syncer.Run },
	},
	{
		name:  "reply",
		rate:  func(r config.RatesConfig) int { return r.Reply },
		build: func(a *App) func(context.Context) error { return a.dispatcher.Flush },
	},
	{
		name:  "io",
		rate:  func(r config.RatesConfig) int { return r.IO },
		build: func(a *App) func(context.Context) error { return a.state.Store.Flush },
	},
	{
		name:  "uptime",
		rate:  func(r config.RatesConfig) int { return r.Uptime },
		build: func(a *App) func(context.Context) error { return a.uptime },
	},
}

// buildTasks builds the scheduler tasks from cfg. With a nil build the Run
// funcs stay nil, which is enough to print the plan.
func buildTasks(cfg *config.Config, build func(taskDef) func(context.Context) error) []scheduler.Task {
	out := make([]scheduler.Task, 0, len(taskTable))
	for _, d := range taskTable {
		var run func(context.Context) error
		if build != nil {
			run = build(d)
		}
		out = append(out, scheduler.Task{
			Name:     d.name,
			Interval: config.Interval(d.rate(cfg.Rates)),
			Run:      run,
		})
	}
	return out
}

// Plan returns the task groups cfg would run.
func Plan(cfg *config.Config) []scheduler.Group {
	return scheduler.Partition(buildTasks(cfg, nil))
}

func (a *App) uptime(context.Context) error {
	up := time.Since(a.started).Truncate(time.Second)
	replied, failed := a.dispatcher.Stats()
	var taskFailures uint64
	for _, t := range a.sched.Snapshot().Tasks {
		taskFailures += t.Failures
	}
	sc := a.sup.Counters()
	a.log.Info("uptime",
		logx.Duration("uptime", up),
		logx.Int("queue", a.state.Queue.Len()),
		logx.Int("jokes", a.state.Catalog.Len()),
		logx.Int("seen_comments", a.state.Ledger.Len(dedup.Comments)),
		logx.Int("seen_mentions", a.state.Ledger.Len(dedup.Mentions)),
		logx.Uint64("replied", replied),
		logx.Uint64("reply_failures", failed),
		logx.Uint64("store_writes", a.state.Store.Writes()),
		logx.Uint64("task_failures", taskFailures),
		logx.Int("goroutines", int(sc.Active)),
		logx.Uint64("goroutine_panics", sc.Panics),
	)
	if err := a.notify.Watchdog(); err != nil {
		a.log.Debug("watchdog notify failed", logx.Err(err))
	}
	_ = a.notify.Status("up %s, %d jokes, %d queued", up, a.state.Catalog.Len(), a.state.Queue.Len())
	return nil
}
