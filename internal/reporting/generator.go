package reporting

import (
	"context"
	"fmt"
	"io"
	"time"

	"rabbit-quant/internal/metrics"
	"rabbit-quant/internal/observability"
	"rabbit-quant/internal/storage"
)

// Generator produces reports from stored runs.
type Generator struct {
	runStore   storage.BacktestRunStore
	tradeStore storage.TradeRecordStore
	now        func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(runStore storage.BacktestRunStore, tradeStore storage.TradeRecordStore) *Generator {
	return &Generator{
		runStore:   runStore,
		tradeStore: tradeStore,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate builds the leaderboard over all stored runs. When timeframe is
// non-empty only runs of that timeframe are included.
func (g *Generator) Generate(ctx context.Context, timeframe string) (*Report, error) {
	runs, err := g.runStore.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load runs: %w", err)
	}

	report := &Report{
		GeneratedAt: g.now(),
		TradeStats:  make(map[string]metrics.TradeStats),
	}
	for _, run := range runs {
		if timeframe != "" && run.Timeframe != timeframe {
			continue
		}
		report.Leaderboard = append(report.Leaderboard, RowFromRun(run))

		trades, err := g.tradeStore.GetByRunID(ctx, run.RunID)
		if err != nil {
			return nil, fmt.Errorf("load trades for %s: %w", run.RunID, err)
		}
		report.TradeStats[run.RunID] = metrics.ComputeTradeStats(trades)
	}

	return report, nil
}

// Save writes leaderboard.md and leaderboard.csv into dir and returns
// the written paths.
func Save(dir string, r *Report) ([]string, error) {
	md, err := SaveFile(dir, "leaderboard.md", func(w io.Writer) error {
		_, err := io.WriteString(w, RenderMarkdown(r))
		return err
	})
	if err != nil {
		return nil, err
	}

	csvPath, err := SaveFile(dir, "leaderboard.csv", func(w io.Writer) error {
		return WriteLeaderboard(w, r.Leaderboard)
	})
	if err != nil {
		return nil, err
	}

	observability.RecordReportGenerated()
	return []string{md, csvPath}, nil
}
