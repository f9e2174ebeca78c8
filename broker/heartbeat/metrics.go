package heartbeat

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	outcomeRefreshed = "refreshed"
	outcomeFailed    = "failed"
	outcomeSkipped   = "skipped"
)

type instruments struct {
	cycles    metric.Int64Counter
	refreshes metric.Int64Counter
	purged    metric.Int64Counter
	duration  metric.Float64Histogram
}

func newInstruments(meter metric.Meter) (*instruments, error) {
	cycles, err := meter.Int64Counter("broker.heartbeat.cycles",
		metric.WithDescription("Completed heartbeat cycles"))
	if err != nil {
		return nil, err
	}
	refreshes, err := meter.Int64Counter("broker.heartbeat.refreshes",
		metric.WithDescription("Session refresh attempts by outcome"))
	if err != nil {
		return nil, err
	}
	purged, err := meter.Int64Counter("broker.sessions.purged",
		metric.WithDescription("Sessions removed after their refresh token expired"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("broker.heartbeat.cycle.duration",
		metric.WithDescription("Wall time of one heartbeat cycle"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &instruments{cycles: cycles, refreshes: refreshes, purged: purged, duration: duration}, nil
}

func (in *instruments) record(ctx context.Context, summary CycleSummary, elapsed time.Duration) {
	// recording must not be skipped when the cycle itself was cancelled
	ctx = context.WithoutCancel(ctx)

	in.cycles.Add(ctx, 1)
	in.refreshes.Add(ctx, int64(summary.Refreshed), outcome(outcomeRefreshed))
	in.refreshes.Add(ctx, int64(summary.Failed), outcome(outcomeFailed))
	in.refreshes.Add(ctx, int64(summary.Skipped), outcome(outcomeSkipped))
	if summary.Purged > 0 {
		in.purged.Add(ctx, int64(summary.Purged))
	}
	in.duration.Record(ctx, elapsed.Seconds())
}

func outcome(name string) metric.AddOption {
	return metric.WithAttributes(attribute.String("outcome", name))
}
