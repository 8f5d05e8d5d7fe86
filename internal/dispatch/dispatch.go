package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/starscheduler/starscheduler/internal/id"
	"github.com/starscheduler/starscheduler/internal/metrics"
	"github.com/starscheduler/starscheduler/internal/model"
	"github.com/starscheduler/starscheduler/internal/observability"
	"github.com/starscheduler/starscheduler/internal/registry"
	"github.com/starscheduler/starscheduler/internal/transport"
)

// defaultTimeouts gives each transport its per-call timeout, per
// spec.md §5's "default 5-15s by transport".
var defaultTimeouts = map[model.Transport]time.Duration{
	model.TransportShell:      15 * time.Second,
	model.TransportTelnet:     15 * time.Second,
	model.TransportDatagram:   5 * time.Second,
	model.TransportSubprocess: 10 * time.Second,
}

// Dispatcher turns a planned Step list into concrete driver calls,
// preferring the registry's persistent session when live and falling
// back to a one-shot driver call otherwise (spec.md §4.5).
type Dispatcher struct {
	registry *registry.Registry
	logs     *observability.LogBuffer
	status   *observability.Status
	drivers  map[model.Transport]transport.Driver
}

// New constructs a Dispatcher backed by reg, logs, and status.
func New(reg *registry.Registry, logs *observability.LogBuffer, status *observability.Status) *Dispatcher {
	return &Dispatcher{
		registry: reg,
		logs:     logs,
		status:   status,
		drivers: map[model.Transport]transport.Driver{
			model.TransportShell:      transport.NewShellDriver(),
			model.TransportTelnet:     transport.NewTelnetDriver(),
			model.TransportDatagram:   transport.NewDatagramDriver(),
			model.TransportSubprocess: transport.NewSubprocessDriver(),
		},
	}
}

// Run executes plan against cl, sleeping between Load and Run steps
// when the event is a non-manual separate_load_run firing. Every
// driver result is appended to the per-client log buffer regardless
// of outcome; errors are returned to the caller for aggregation but
// never panic.
func (d *Dispatcher) Run(ctx context.Context, cl model.Client, cc model.ClientConfig, targetTime time.Time, isManual bool, plan []Step) error {
	traceID := id.DispatchTraceID()
	var firstErr error

	for _, step := range plan {
		if step.Skip {
			slog.Warn("dispatch step skipped", "client_id", cl.ID, "trace_id", traceID, "reason", step.SkipWhy)
			continue
		}

		if !isManual && cc.SeparateLoadRun && step.OffsetAt != "" {
			waitUntil(ctx, offsetTime(targetTime, cc, step.OffsetAt))
		}

		if err := d.runStep(ctx, cl, step, string(cc.Action), traceID); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func offsetTime(target time.Time, cc model.ClientConfig, which string) time.Time {
	if which == "load" {
		return target.Add(time.Duration(cc.LoadOffset) * time.Second)
	}
	return target.Add(time.Duration(cc.RunOffset) * time.Second)
}

// waitUntil sleeps until t using a monotonic timer. A Load that
// arrives late (t already passed) proceeds immediately, never
// rescheduling (spec.md §4.5).
func waitUntil(ctx context.Context, t time.Time) {
	d := time.Until(t)
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

func (d *Dispatcher) runStep(ctx context.Context, cl model.Client, step Step, action, traceID string) error {
	timeout := defaultTimeouts[cl.Transport]
	start := time.Now()

	var stdout, stderr string
	var err error

	switch cl.Transport {
	case model.TransportShell:
		if d.registry.IsClientConnected(cl.ID) {
			stdout, stderr, err = d.registry.ExecuteShell(ctx, cl.ID, step.Command, timeout)
			break
		}
		stdout, stderr, err = d.drivers[cl.Transport].Execute(ctx, cl, step.Command, timeout)
	case model.TransportTelnet:
		if d.registry.IsClientConnected(cl.ID) {
			stdout, stderr, err = d.registry.ExecuteTelnet(ctx, cl.ID, step.Command, timeout)
			break
		}
		stdout, stderr, err = d.drivers[cl.Transport].Execute(ctx, cl, step.Command, timeout)
	default:
		stdout, stderr, err = d.drivers[cl.Transport].Execute(ctx, cl, step.Command, timeout)
	}

	metrics.DispatchDuration.WithLabelValues(string(cl.Transport), action).Observe(time.Since(start).Seconds())

	d.logs.Append(cl.ID, step.Command, stdout, stderr, time.Now())

	if err != nil {
		metrics.DispatchFailuresTotal.WithLabelValues(string(cl.Transport)).Inc()
		d.status.RecordWarning()
		slog.Error("dispatch step failed", "client_id", cl.ID, "trace_id", traceID, "transport", cl.Transport, "error", err)
		return err
	}
	if stderr != "" {
		d.status.RecordWarning()
	}
	return nil
}
