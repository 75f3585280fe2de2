package scheduler

import (
	"context"
	"time"
)

// Config controls task execution.
type Config struct {
	// DefaultTimeout bounds each task run that sets no Timeout of its own.
	// 0 means no timeout.
	DefaultTimeout time.Duration
}

// Task is a named function run every Interval.
type Task struct {
	Name     string
	Interval time.Duration
	Timeout  time.Duration
	Run      func(ctx context.Context) error
}

// Group is the set of tasks sharing one interval, in registration order.
type Group struct {
	Interval time.Duration
	Tasks    []Task
}

func (g Group) Names() []string {
	out := make([]string, len(g.Tasks))
	for i, t := range g.Tasks {
		out[i] = t.Name
	}
	return out
}

type TaskInfo struct {
	Name         string
	Interval     time.Duration
	Runs         uint64
	Failures     uint64
	Panics       uint64
	LastRunID    string
	LastStart    time.Time
	LastDuration time.Duration
	LastError    string
	LastErrorAt  time.Time
}

type GroupInfo struct {
	Interval time.Duration
	Tasks    []string
	Batches  uint64
	Next     time.Time
}

type Snapshot struct {
	Running bool
	Groups  []GroupInfo
	Tasks   []TaskInfo
}
