// Package jobs runs queued solves in the background.
package jobs

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"carevrp/internal/events"
	"carevrp/internal/metrics"
	"carevrp/internal/milp"
	"carevrp/internal/model"
	"carevrp/internal/opt"
	"carevrp/internal/store"
	"carevrp/internal/webhooks"
)

// finishTimeout bounds the final store write of a run.
const finishTimeout = 10 * time.Second

// Worker claims queued solve runs and executes them with bounded
// parallelism. Each run gets its own opt.Engine, so stage reporting never
// crosses runs.
type Worker struct {
	Store    store.Store
	Broker   events.Broker
	Notifier *webhooks.Notifier
	Solver   milp.Solver
	Config   opt.Config

	Interval    time.Duration
	Concurrency int
	Stop        chan struct{}
}

func NewWorker(s store.Store, b events.Broker, solver milp.Solver, cfg opt.Config) *Worker {
	return &Worker{
		Store:       s,
		Broker:      b,
		Notifier:    webhooks.NewNotifier(s),
		Solver:      solver,
		Config:      cfg,
		Interval:    500 * time.Millisecond,
		Concurrency: 2,
		Stop:        make(chan struct{}),
	}
}

// Start polls for queued runs until Stop is closed. Closing Stop cancels
// solves in flight.
func (w *Worker) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-w.Stop
		cancel()
	}()
	go func() {
		ticker := time.NewTicker(w.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.ProcessOnce(ctx)
			}
		}
	}()
}

// ProcessOnce claims up to Concurrency runs and waits for all of them.
func (w *Worker) ProcessOnce(ctx context.Context) int {
	limit := w.Concurrency
	if limit < 1 {
		limit = 1
	}
	runs, err := w.Store.ClaimSolves(ctx, limit)
	if err != nil {
		log.Printf("jobs: claim: %v", err)
		return 0
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, run := range runs {
		run := run
		g.Go(func() error {
			w.execute(gctx, run)
			return nil
		})
	}
	_ = g.Wait()
	return len(runs)
}

func (w *Worker) execute(ctx context.Context, run model.SolveRun) {
	metrics.InFlight.Inc()
	defer metrics.InFlight.Dec()
	start := time.Now()

	var res *model.Result
	errMsg := ""
	rec, err := w.Store.GetInstance(ctx, run.InstanceID)
	switch {
	case err != nil:
		errMsg = err.Error()
	case rec.Revision != run.Revision:
		// edited after enqueue; FinishSolve marks it stale
	default:
		in := rec.Instance.ToVRP()
		in.Revision = rec.Revision
		eng := &opt.Engine{Solver: w.Solver, Config: w.Config, Observe: func(s opt.Stage) {
			if err := w.Store.SetSolveStage(ctx, run.ID, string(s)); err != nil {
				log.Printf("jobs: stage solve=%s stage=%s err=%v", run.ID, s, err)
			}
			w.publish(run.ID, model.Event{Type: model.EventStage, Stage: string(s)})
		}}
		out, err := eng.Solve(ctx, in)
		if err != nil {
			errMsg = err.Error()
			break
		}
		if ctx.Err() != nil {
			errMsg = "worker stopped: " + ctx.Err().Error()
			break
		}
		r := model.FromResult(out)
		res = &r
		observe(w.Solver.Name(), out)
	}

	// the terminal state is written even when the worker is stopping,
	// otherwise the run stays claimed forever
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()
	ctx = fctx
	done, err := w.Store.FinishSolve(ctx, run.ID, res, errMsg)
	switch {
	case errors.Is(err, store.ErrStaleRevision):
		log.Printf("jobs: solve=%s instance=%s revision=%d stale", run.ID, run.InstanceID, run.Revision)
	case err != nil:
		log.Printf("jobs: finish solve=%s err=%v", run.ID, err)
		return
	default:
		log.Printf("jobs: solve=%s status=%s elapsed=%s", run.ID, done.Status, time.Since(start))
	}
	w.publish(run.ID, model.Event{Type: model.EventDone, Status: done.Status})
	if w.Notifier != nil {
		w.Notifier.SolveDone(ctx, done)
	}
}

func (w *Worker) publish(solveID string, evt model.Event) {
	if w.Broker == nil {
		return
	}
	evt.ID = uuid.NewString()
	evt.SolveID = solveID
	evt.TS = time.Now().UTC()
	w.Broker.Publish(solveID, evt)
}

func observe(backend string, r opt.Result) {
	metrics.Solves.WithLabelValues(backend, string(r.Status)).Inc()
	if r.Stats.Variables > 0 {
		metrics.ModelVariables.Observe(float64(r.Stats.Variables))
		metrics.SolveDuration.WithLabelValues(backend).Observe(r.Stats.SolveTime.Seconds())
		metrics.SearchNodes.Observe(float64(r.Stats.Nodes))
	}
}
