package observer

import (
	"context"
	"time"

	"github.com/narwanda/tandem"

	"go.opentelemetry.io/otel/metric"
)

// ObservedKeySource wraps a tandem.KeySource, counting selections,
// exhaustions, and reported errors.
type ObservedKeySource struct {
	inner tandem.KeySource
	inst  *Instruments
}

// WrapKeySource returns an instrumented key source.
func WrapKeySource(inner tandem.KeySource, inst *Instruments) *ObservedKeySource {
	return &ObservedKeySource{inner: inner, inst: inst}
}

var _ tandem.KeySource = (*ObservedKeySource)(nil)

func (o *ObservedKeySource) GetAvailableKey(requestSize int64) (string, bool) {
	key, ok := o.inner.GetAvailableKey(requestSize)
	// Metric API calls take a context; key selection has none of its own.
	ctx := context.Background()
	if ok {
		o.inst.KeySelections.Add(ctx, 1)
	} else {
		o.inst.KeyExhaustions.Add(ctx, 1)
	}
	return key, ok
}

func (o *ObservedKeySource) ReportSuccess(key string, bytes int64) {
	o.inner.ReportSuccess(key, bytes)
}

func (o *ObservedKeySource) ReportError(key string, err error) {
	o.inner.ReportError(key, err)
	o.inst.KeyErrors.Add(context.Background(), 1, metric.WithAttributes(
		AttrKeyStatus.String("error"),
	))
}

func (o *ObservedKeySource) EstimatedWaitTime() time.Duration {
	return o.inner.EstimatedWaitTime()
}
