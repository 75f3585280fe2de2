package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"jokebot/internal/runtime/supervisor"
	logx "jokebot/pkg/logx"
)

// Partition groups tasks by identical interval. Groups are ordered by
// interval, tasks keep their registration order.
func Partition(tasks []Task) []Group {
	idx := map[time.Duration]int{}
	var groups []Group
	for _, t := range tasks {
		i, ok := idx[t.Interval]
		if !ok {
			i = len(groups)
			idx[t.Interval] = i
			groups = append(groups, Group{Interval: t.Interval})
		}
		groups[i].Tasks = append(groups[i].Tasks, t)
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Interval < groups[j].Interval })
	return groups
}

// nextRun returns when a group that finished a batch at now runs again.
// The result is never earlier than now+interval. cron.Every works in whole
// seconds and truncates now, so a fractional now starts from the next
// second. Sub-second intervals (tests) are added directly.
func nextRun(interval time.Duration, now time.Time) time.Time {
	if interval < time.Second {
		return now.Add(interval)
	}
	next := cron.Every(interval).Next(now)
	if next.Before(now.Add(interval)) {
		next = next.Add(time.Second)
	}
	return next
}

type taskState struct {
	info TaskInfo
}

type groupState struct {
	batches uint64
	next    time.Time
}

type Service struct {
	cfg    Config
	log    logx.Logger
	groups []Group

	mu     sync.Mutex
	sup    *supervisor.Supervisor
	tasks  map[string]*taskState
	gstate []groupState
}

// New validates the task table and partitions it into groups.
func New(cfg Config, tasks []Task, log logx.Logger) (*Service, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	var errs []error
	seen := map[string]bool{}
	for i, t := range tasks {
		name := strings.TrimSpace(t.Name)
		switch {
		case name == "":
			errs = append(errs, fmt.Errorf("task[%d]: name is required", i))
		case seen[name]:
			errs = append(errs, fmt.Errorf("task %q: duplicate name", name))
		}
		seen[name] = true
		if t.Interval <= 0 {
			errs = append(errs, fmt.Errorf("task %q: interval must be > 0", name))
		}
		if t.Run == nil {
			errs = append(errs, fmt.Errorf("task %q: run func is nil", name))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	groups := Partition(tasks)
	st := make(map[string]*taskState, len(tasks))
	for _, g := range groups {
		for _, t := range g.Tasks {
			st[t.Name] = &taskState{info: TaskInfo{Name: t.Name, Interval: g.Interval}}
		}
	}
	return &Service{
		cfg:    cfg,
		log:    log,
		groups: groups,
		tasks:  st,
		gstate: make([]groupState, len(groups)),
	}, nil
}

func (s *Service) Groups() []Group { return s.groups }

// Start launches one loop per group. Cancelling ctx stops every loop.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return
	}
	s.sup = supervisor.NewSupervisor(ctx, supervisor.WithLogger(s.log))
	for i, g := range s.groups {
		s.sup.Go0("group@"+g.Interval.String(), func(ctx context.Context) { s.loop(ctx, i, g) })
	}
	s.log.Info("service started", logx.Int("groups", len(s.groups)), logx.Int("tasks", len(s.tasks)))
}

// Stop cancels the loops and waits for them to exit or ctx to end.
func (s *Service) Stop(ctx context.Context) error {
	start := time.Now()
	s.mu.Lock()
	sup := s.sup
	s.mu.Unlock()
	if sup == nil {
		return nil
	}
	err := sup.Stop(ctx)
	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
	return err
}

// Wait blocks until every loop has exited, e.g. after the Start context
// was cancelled.
func (s *Service) Wait(ctx context.Context) error {
	s.mu.Lock()
	sup := s.sup
	s.mu.Unlock()
	if sup == nil {
		return nil
	}
	return sup.Wait(ctx)
}

func (s *Service) loop(ctx context.Context, gi int, g Group) {
	log := s.log.With(logx.Duration("interval", g.Interval), logx.Strings("tasks", g.Names()))
	log.Debug("group loop started")
	for {
		for _, t := range g.Tasks {
			if ctx.Err() != nil {
				log.Debug("group loop stopped")
				return
			}
			s.runTask(ctx, t)
		}

		next := nextRun(g.Interval, time.Now())
		s.mu.Lock()
		s.gstate[gi].batches++
		s.gstate[gi].next = next
		s.mu.Unlock()

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Debug("group loop stopped")
			return
		case <-timer.C:
		}
	}
}

// runTask runs one task in isolation: a panic or error is logged and
// recorded, never propagated to the group.
func (s *Service) runTask(ctx context.Context, t Task) {
	runID := uuid.NewString()
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = s.cfg.DefaultTimeout
	}
	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
	}

	start := time.Now()
	var err error
	panicked := false
	func() {
		defer func() {
			if r := recover(); r != nil {
				panicked = true
				err = fmt.Errorf("panic: %v", r)
				s.log.Error("task.panic", logx.String("task", t.Name), logx.String("run_id", runID), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			}
		}()
		err = t.Run(runCtx)
	}()
	if cancel != nil {
		cancel()
	}
	dur := time.Since(start)

	// a task cut short by shutdown is not a failure
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		err = nil
	}

	s.mu.Lock()
	if st := s.tasks[t.Name]; st != nil {
		st.info.Runs++
		st.info.LastRunID = runID
		st.info.LastStart = start
		st.info.LastDuration = dur
		if err != nil {
			st.info.Failures++
			st.info.LastError = err.Error()
			st.info.LastErrorAt = time.Now()
		}
		if panicked {
			st.info.Panics++
		}
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Warn("task.failed", logx.String("task", t.Name), logx.String("run_id", runID), logx.Duration("dur", dur), logx.Err(err))
		return
	}
	s.log.Trace("task.completed", logx.String("task", t.Name), logx.String("run_id", runID), logx.Duration("dur", dur))
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{Running: s.sup != nil && s.sup.Context().Err() == nil}
	for i, g := range s.groups {
		snap.Groups = append(snap.Groups, GroupInfo{
			Interval: g.Interval,
			Tasks:    g.Names(),
			Batches:  s.gstate[i].batches,
			Next:     s.gstate[i].next,
		})
		for _, t := range g.Tasks {
			snap.Tasks = append(snap.Tasks, s.tasks[t.Name].info)
		}
	}
	return snap
}
