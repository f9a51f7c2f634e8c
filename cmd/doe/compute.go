package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/ohowland/doe_core/internal/pkg/batch"
	"github.com/ohowland/doe_core/internal/pkg/constraint"
	"github.com/ohowland/doe_core/internal/pkg/datastreams/mongodb"
	"github.com/ohowland/doe_core/internal/pkg/datastreams/natshandler"
	"github.com/ohowland/doe_core/internal/pkg/envelope"
	"github.com/ohowland/doe_core/internal/pkg/forecast"
	"github.com/ohowland/doe_core/internal/pkg/network"
	"github.com/ohowland/doe_core/internal/pkg/telemetry/modbuscomm"
)

var (
	flagStore    bool
	flagPublish  bool
	flagDeadline time.Duration
)

var computeCmd = &cobra.Command{
	Use:   "compute",
	Short: "Run one envelope batch over the configured network snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		model, err := loadModel(cfg.Topology)
		if err != nil {
			return err
		}
		constraints, err := loadConstraints(cfg.Constraints)
		if err != nil {
			return err
		}
		snapshot, err := loadSnapshot(cfg.Forecast)
		if err != nil {
			return err
		}

		if cfg.Meters != "" {
			meters, err := modbuscomm.LoadMeters(cfg.Meters)
			if err != nil {
				return eris.Wrap(err, "doe compute: load meters")
			}
			snapshot = modbuscomm.Calibrate(snapshot, meters)
		}

		orchestrator := batch.New(batch.Config{
			Workers: cfg.Workers,
			Solver: envelope.SolverConfig{
				MaxSearchKW:       cfg.Solver.MaxSearchKW,
				ResolutionKW:      cfg.Solver.ResolutionKW,
				MaxIterations:     cfg.Solver.MaxIterations,
				UncertaintyMargin: cfg.Solver.UncertaintyMargin,
				PowerFactor:       cfg.Solver.PowerFactor,
			},
		})
		defer orchestrator.Close()

		stopHandlers, err := attachHandlers(orchestrator)
		if err != nil {
			return err
		}

		ctx := context.Background()
		if flagDeadline > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, flagDeadline)
			defer cancel()
		}

		out, err := orchestrator.ComputeAll(ctx, model, snapshot, constraints)
		if err != nil {
			return eris.Wrap(err, "doe compute")
		}

		printResults(out)
		stopHandlers()
		return nil
	},
}

func init() {
	computeCmd.Flags().BoolVar(&flagStore, "store", false, "write envelopes to the configured MongoDB")
	computeCmd.Flags().BoolVar(&flagPublish, "publish", false, "publish envelopes to the configured NATS server")
	computeCmd.Flags().DurationVar(&flagDeadline, "deadline", 0, "batch budget; expired mid-run, remaining nodes are skipped")
	rootCmd.AddCommand(computeCmd)
}

func loadModel(path string) (*network.Model, error) {
	doc, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "doe compute: read topology")
	}
	model, err := network.New(doc)
	if err != nil {
		return nil, eris.Wrap(err, "doe compute: build network")
	}
	return model, nil
}

func loadConstraints(path string) (*constraint.Set, error) {
	doc, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "doe compute: read constraints")
	}
	set, err := constraint.New(doc)
	if err != nil {
		return nil, eris.Wrap(err, "doe compute: parse constraints")
	}
	return set, nil
}

func loadSnapshot(path string) (*forecast.Snapshot, error) {
	doc, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "doe compute: read forecast")
	}
	snapshot, err := forecast.New(doc)
	if err != nil {
		return nil, eris.Wrap(err, "doe compute: parse forecast")
	}
	return snapshot, nil
}

// attachHandlers wires the optional datastream handlers and returns a stop
// function that closes their subscriptions and waits until every queued
// result is written out.
func attachHandlers(orchestrator *batch.Orchestrator) (func(), error) {
	stops := make([]func(), 0, 2)

	if flagStore {
		h, err := mongodb.New(cfg.MongoConfig, orchestrator)
		if err != nil {
			return nil, eris.Wrap(err, "doe compute: mongo handler")
		}
		go h.Process()
		stops = append(stops, func() {
			orchestrator.Unsubscribe(h.PID())
			h.Drain()
		})
	}
	if flagPublish {
		h, err := natshandler.New(cfg.NATSConfig, orchestrator)
		if err != nil {
			return nil, eris.Wrap(err, "doe compute: nats handler")
		}
		go h.Process()
		stops = append(stops, func() {
			orchestrator.Unsubscribe(h.PID())
			h.Drain()
		})
	}

	return func() {
		for _, stop := range stops {
			stop()
		}
	}, nil
}

func printResults(out batch.Output) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NODE\tCUSTOMER\tEXPORT kW\tIMPORT kW\tFACTOR\tNOTE")
	for _, r := range out.Results {
		if r.Envelope == nil {
			fmt.Fprintf(w, "%s\t\t\t\t\tfailed: %v\n", r.NodeID, r.Err)
			continue
		}
		note := ""
		if r.Unconverged {
			note = "unconverged"
		}
		e := r.Envelope
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%.2f\t%s\t%s\n",
			e.NodeID, e.CustomerID, e.ExportLimitKW, e.ImportLimitKW, e.LimitingFactor, note)
	}
	for _, id := range out.Unattempted {
		fmt.Fprintf(w, "%s\t\t\t\t\tskipped: deadline\n", id)
	}
	_ = w.Flush()

	s := out.Summary
	fmt.Printf("\ncalculation %s: %d solved, %d failed, %d skipped\n",
		s.CalculationID, s.Solved, s.Failed, s.Unattempted)
	if s.Solved > 0 {
		fmt.Printf("export kW min/avg/max: %.2f / %.2f / %.2f (total %.2f)\n",
			s.MinExportKW, s.AvgExportKW, s.MaxExportKW, s.TotalExportKW)
	}
	for factor, count := range s.ByLimitingFactor {
		fmt.Printf("limited by %s: %d\n", factor, count)
	}
	fmt.Printf("took %.1f ms\n", s.DurationMS)
}
