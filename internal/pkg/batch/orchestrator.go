/*
orchestrator.go Runs the envelope solver for every customer node of a network
snapshot. Solves share the immutable model, constraint set and baseline and
write only their own result slot, so they run in parallel workers with no
locking. One customer's failure never aborts its siblings; a snapshot-level
setup failure aborts the batch before any solve starts.
*/

package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ohowland/doe_core/internal/pkg/constraint"
	"github.com/ohowland/doe_core/internal/pkg/envelope"
	"github.com/ohowland/doe_core/internal/pkg/forecast"
	"github.com/ohowland/doe_core/internal/pkg/msg"
	"github.com/ohowland/doe_core/internal/pkg/network"
	"github.com/ohowland/doe_core/internal/pkg/sensitivity"
)

// Config holds the batch parameters.
type Config struct {
	// Workers caps concurrent per-node solves.
	Workers int `json:"Workers"`
	// Solver is passed through to every per-node search.
	Solver envelope.SolverConfig `json:"Solver"`
}

const defaultWorkers = 4

// Result is one node's slot in the batch output. Envelope is nil when the
// solve failed; Err carries the failure. An unconverged search sets both: the
// envelope holds the best feasible limits and Err the *envelope.SearchError.
type Result struct {
	NodeID      string
	Envelope    *envelope.OperatingEnvelope
	Err         error
	Unconverged bool
}

// Output is the complete outcome of one ComputeAll invocation.
type Output struct {
	CalculationID uuid.UUID
	Results       []Result
	// Unattempted lists customer nodes skipped because the deadline expired
	// before their solve was launched.
	Unattempted []string
	Summary     Summary
}

// Orchestrator runs batches and publishes results to its subscribers.
type Orchestrator struct {
	pid       uuid.UUID
	publisher *msg.PubSub
	config    Config
	log       *zap.Logger
}

// New configures and returns an Orchestrator.
func New(config Config) *Orchestrator {
	if config.Workers <= 0 {
		config.Workers = defaultWorkers
	}
	pid := uuid.New()
	return &Orchestrator{
		pid:       pid,
		publisher: msg.NewPublisher(pid),
		config:    config,
		log:       zap.L().Named("batch"),
	}
}

// PID returns the orchestrator's process id.
func (o *Orchestrator) PID() uuid.UUID {
	return o.pid
}

// Subscribe registers a datastream handler for a result topic.
func (o *Orchestrator) Subscribe(pid uuid.UUID, topic msg.Topic) (<-chan msg.Msg, error) {
	return o.publisher.Subscribe(pid, topic)
}

// Unsubscribe removes a datastream handler.
func (o *Orchestrator) Unsubscribe(pid uuid.UUID) {
	o.publisher.Unsubscribe(pid)
}

// Close shuts down the result publisher.
func (o *Orchestrator) Close() {
	o.publisher.Close()
}

// ComputeAll solves the operating envelope for every customer node in the
// snapshot, holding every other node's injection at its forecast baseline.
// The context deadline bounds the batch: expired mid-run, completed results
// are returned together with the unattempted node ids.
func (o *Orchestrator) ComputeAll(ctx context.Context, model *network.Model, snapshot *forecast.Snapshot, constraints *constraint.Set) (Output, error) {
	started := time.Now()
	calcID := uuid.New()

	if model == nil || snapshot == nil || constraints == nil {
		return Output{}, errors.New("batch: model, snapshot and constraints are all required")
	}

	pf := o.config.Solver.PowerFactor
	if pf <= 0 {
		pf = envelope.DefaultSolverConfig().PowerFactor
	}
	calc, err := sensitivity.New(model, snapshot, pf)
	if err != nil {
		return Output{}, fmt.Errorf("batch: setup: %w", err)
	}
	solver := envelope.NewSolver(calc, constraints, o.config.Solver)

	targets := model.CustomerNodes()
	// Every solve writes only its own preallocated slot; once the context
	// expires no further solves launch, so the attempted slots form a prefix.
	results := make([]Result, len(targets))
	unattempted := make([]string, 0)

	g := new(errgroup.Group)
	g.SetLimit(o.config.Workers)

	launched := 0
	for _, node := range targets {
		if ctx.Err() != nil {
			unattempted = append(unattempted, node.ID)
			continue
		}
		slot := launched
		launched++
		nodeID := node.ID
		g.Go(func() error {
			report, err := solver.Solve(nodeID)
			r := Result{NodeID: nodeID, Err: err}
			var searchErr *envelope.SearchError
			switch {
			case err == nil:
				env := report.Envelope
				r.Envelope = &env
			case errors.As(err, &searchErr):
				// best feasible value is still safe, flagged unconverged
				env := report.Envelope
				r.Envelope = &env
				r.Unconverged = true
			default:
				o.log.Warn("solve failed", zap.String("node", nodeID), zap.Error(err))
			}
			results[slot] = r
			return nil
		})
	}
	_ = g.Wait()
	results = results[:launched]

	summary := summarize(calcID, started, results, unattempted)

	for _, r := range results {
		if r.Envelope != nil {
			o.publisher.Publish(msg.Envelope, *r.Envelope)
		}
	}
	o.publisher.Publish(msg.Summary, summary)

	o.log.Info("batch complete",
		zap.String("calculation", calcID.String()),
		zap.Int("solved", summary.Solved),
		zap.Int("failed", summary.Failed),
		zap.Int("unattempted", summary.Unattempted),
		zap.Float64("duration_ms", summary.DurationMS))

	return Output{
		CalculationID: calcID,
		Results:       results,
		Unattempted:   unattempted,
		Summary:       summary,
	}, nil
}
