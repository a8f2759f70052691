package workers

import (
	"context"
	"log/slog"
	"time"

	"presence-relay/contract"
)

var _ contract.Worker = (*HealthMonitoringWorker)(nil)

type ProcessSampler interface {
	SampleProcess() error
}

// HealthMonitoringWorker samples the relay process at a fixed interval.
type HealthMonitoringWorker struct {
	log            *slog.Logger
	sampler        ProcessSampler
	metricInterval time.Duration
}

func NewHealthMonitoringWorker(log *slog.Logger, sampler ProcessSampler, metricInterval time.Duration) *HealthMonitoringWorker {
	return &HealthMonitoringWorker{log: log, sampler: sampler, metricInterval: metricInterval}
}

func (w *HealthMonitoringWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping health monitoring")
			return nil
		case <-ticker.C:
			if err := w.sampler.SampleProcess(); err != nil {
				w.log.Debug("Error while sampling process", "err", err)
			}
		}
	}
}
