// Package scheduler runs named periodic tasks grouped by interval.
//
// Tasks sharing an interval form a group. Each group runs on its own
// supervised goroutine: it executes every task of the group in
// registration order, then sleeps for the interval measured from the end
// of the batch, rounded up to the next whole second for intervals of a
// second or more. Slow batches push later runs back; drift is not corrected.
//
// The context passed to Start is the stop signal. Loops check it before
// every task and while sleeping; running tasks are never interrupted
// except through that same context (or a per-task timeout).
package scheduler
