// Package scheduler implements C13's scheduler-side half: background
// jobs that run for as long as a tree is loaded, registered on a
// gocron.Scheduler the way the teacher's taskManager registers its own
// recurring jobs (one Register* function per job, a shared package
// Start/Shutdown pair).
//
// The reconciler (C7) already re-rolls up the specific ancestors a
// batch of filesystem events touched, every time a batch lands — that
// is the "(a)" half of spec.md §9's rollup-staleness resolution. This
// package supplies "(b)": a full-tree rollup that runs on a fixed
// interval regardless of reconciler activity, as a safety net against
// any bookkeeping bug in the incremental path leaving the tree's sizes
// stale.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/diskviz/treemap/internal/nodetree"
	"github.com/diskviz/treemap/pkg/log"
)

var logger = log.For("scheduler")

// DefaultRollupInterval is how often the full-tree-rollup safety net
// runs while a tree is loaded.
const DefaultRollupInterval = 60 * time.Second

// TreeProvider returns the root of the tree currently loaded, or nil
// if no scan has completed yet. The scheduler calls this on every
// rollup tick rather than being handed a fixed root, since a session
// may load a new tree (a fresh scan) while the scheduler keeps
// running.
type TreeProvider func() *nodetree.Node

// Scheduler owns the gocron.Scheduler and the jobs registered on it.
// The zero value is not usable; construct with New.
type Scheduler struct {
	gs gocron.Scheduler
}

// Options tunes a Scheduler.
type Options struct {
	// RollupInterval overrides DefaultRollupInterval. Zero means use
	// the default.
	RollupInterval time.Duration
}

// New creates a Scheduler and registers the full-tree-rollup job
// against tree. The scheduler is not yet running; call Start.
func New(tree TreeProvider, opts Options) (*Scheduler, error) {
	gs, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("scheduler: creating gocron scheduler: %w", err)
	}

	s := &Scheduler{gs: gs}
	if err := s.registerFullTreeRollup(tree, opts.RollupInterval); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) registerFullTreeRollup(tree TreeProvider, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultRollupInterval
	}

	_, err := s.gs.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			root := tree()
			if root == nil {
				return
			}
			start := time.Now()
			nodetree.Rollup(root)
			logger.Debugf("full-tree-rollup took %s", time.Since(start))
		}),
	)
	if err != nil {
		return fmt.Errorf("scheduler: registering full-tree-rollup: %w", err)
	}
	return nil
}

// Start launches the scheduler's own goroutine. Non-blocking.
func (s *Scheduler) Start() {
	s.gs.Start()
}

// Shutdown stops the scheduler and blocks until its jobs have
// finished. ctx is accepted for API symmetry with the rest of this
// module's lifecycle methods but gocron's own Shutdown has no
// cancellation hook; callers that need a hard deadline should run it
// in a goroutine and select on ctx.Done() themselves.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	return s.gs.Shutdown()
}
