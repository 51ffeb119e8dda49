package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"rabbit-quant/internal/domain"
	"rabbit-quant/internal/signal"
	"rabbit-quant/internal/storage"
)

// Scan generates the latest signal for every configured symbol on every
// timeframe. Pairs without data or failing generation are reported in
// BatchResult.Failed. Records are persisted when a signal store is set.
func (o *Orchestrator) Scan(ctx context.Context, timeframes []string) (*signal.BatchResult, error) {
	var series []domain.PriceSeries
	missing := make(map[string]error)

	for _, tf := range timeframes {
		s, miss, err := o.LoadSeries(ctx, tf)
		for sym, e := range miss {
			missing[sym+"/"+tf] = e
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			o.logger.Warn("timeframe has no data", zap.String("timeframe", tf), zap.Error(err))
			continue
		}
		series = append(series, s...)
	}

	opts := o.bundle.Signal
	opts.Now = o.now

	start := time.Now()
	res, err := signal.GenerateBatch(ctx, series, opts, o.bundle.Workers)
	if res != nil {
		for k, e := range missing {
			res.Failed[k] = e
		}
	}
	if err != nil {
		return res, err
	}
	o.metrics.SignalBatchLatency.Observe(time.Since(start).Seconds())
	o.metrics.SignalFailures.Add(float64(len(res.Failed)))
	for _, rec := range res.Records {
		o.metrics.RecordSignal(string(rec.Signal))
	}

	if o.signalStore != nil {
		if err := o.storeSignals(ctx, res.Records); err != nil {
			return res, err
		}
	}

	o.logger.Info("scan complete",
		zap.Int("pairs", len(series)),
		zap.Int("signals", len(res.Records)),
		zap.Int("failed", len(res.Failed)),
	)
	return res, nil
}

// storeSignals persists records newer than the latest stored signal of
// their pair. Rescanning unchanged history therefore stores nothing.
func (o *Orchestrator) storeSignals(ctx context.Context, records []domain.SignalRecord) error {
	var fresh []*domain.SignalRecord
	for i := range records {
		rec := &records[i]
		latest, err := o.signalStore.GetLatest(ctx, rec.Symbol, rec.Timeframe)
		switch {
		case errors.Is(err, storage.ErrNotFound):
		case err != nil:
			return fmt.Errorf("latest signal %s/%s: %w", rec.Symbol, rec.Timeframe, err)
		case latest.Timestamp >= rec.Timestamp:
			continue
		}
		fresh = append(fresh, rec)
	}
	if len(fresh) == 0 {
		return nil
	}
	if err := o.signalStore.InsertBulk(ctx, fresh); err != nil {
		return fmt.Errorf("store signals: %w", err)
	}
	return nil
}

// RefreshFunc adapts Scan to a signal cache refresh function.
func (o *Orchestrator) RefreshFunc(timeframes []string) func(context.Context) ([]domain.SignalRecord, error) {
	return func(ctx context.Context) ([]domain.SignalRecord, error) {
		res, err := o.Scan(ctx, timeframes)
		if err != nil {
			return nil, err
		}
		return res.Records, nil
	}
}
