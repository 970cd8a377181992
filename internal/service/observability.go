package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/alexanderramin/branchplan/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// UseCaseEvent captures lightweight execution telemetry for a service use case.
type UseCaseEvent struct {
	Name      string
	Duration  time.Duration
	Success   bool
	Err       error
	Fields    map[string]any
	StartedAt time.Time
}

// UseCaseObserver receives use-case execution events.
type UseCaseObserver interface {
	ObserveUseCase(ctx context.Context, event UseCaseEvent)
}

// NoopUseCaseObserver ignores all events.
type NoopUseCaseObserver struct{}

func (NoopUseCaseObserver) ObserveUseCase(context.Context, UseCaseEvent) {}

type logUseCaseObserver struct {
	logger *slog.Logger
}

// NewLogUseCaseObserver writes service use-case events to the provided writer.
func NewLogUseCaseObserver(w io.Writer) UseCaseObserver {
	if w == nil {
		return NoopUseCaseObserver{}
	}
	return &logUseCaseObserver{
		logger: slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})),
	}
}

func (o *logUseCaseObserver) ObserveUseCase(ctx context.Context, event UseCaseEvent) {
	attrs := make([]any, 0, 8+len(event.Fields)*2)
	attrs = append(attrs,
		"use_case", event.Name,
		"duration_ms", event.Duration.Milliseconds(),
		"success", event.Success,
	)
	for k, v := range event.Fields {
		attrs = append(attrs, k, v)
	}
	if event.Err != nil {
		attrs = append(attrs, "error", event.Err.Error())
		o.logger.ErrorContext(ctx, "service_use_case", attrs...)
		return
	}
	o.logger.InfoContext(ctx, "service_use_case", attrs...)
}

func useCaseObserverOrNoop(observers []UseCaseObserver) UseCaseObserver {
	for _, obs := range observers {
		if obs != nil {
			return obs
		}
	}
	return NoopUseCaseObserver{}
}

type multiUseCaseObserver []UseCaseObserver

// MultiUseCaseObserver fans events out to every non-nil observer.
func MultiUseCaseObserver(observers ...UseCaseObserver) UseCaseObserver {
	var out multiUseCaseObserver
	for _, obs := range observers {
		if obs != nil {
			out = append(out, obs)
		}
	}
	switch len(out) {
	case 0:
		return NoopUseCaseObserver{}
	case 1:
		return out[0]
	}
	return out
}

func (m multiUseCaseObserver) ObserveUseCase(ctx context.Context, event UseCaseEvent) {
	for _, obs := range m {
		obs.ObserveUseCase(ctx, event)
	}
}

// PrometheusObserver counts use cases by outcome and records their latency.
type PrometheusObserver struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewPrometheusObserver creates the collectors and registers them on reg.
func NewPrometheusObserver(reg prometheus.Registerer) (*PrometheusObserver, error) {
	o := &PrometheusObserver{
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "branchplan",
				Subsystem: "service",
				Name:      "use_cases_total",
				Help:      "Total number of service use case executions.",
			},
			[]string{"use_case", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "branchplan",
				Subsystem: "service",
				Name:      "use_case_duration_seconds",
				Help:      "Duration of service use case executions.",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
			},
			[]string{"use_case"},
		),
	}
	for _, c := range []prometheus.Collector{o.calls, o.duration} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("registering use case metrics: %w", err)
		}
	}
	return o, nil
}

func (o *PrometheusObserver) ObserveUseCase(_ context.Context, event UseCaseEvent) {
	o.calls.WithLabelValues(event.Name, outcomeLabel(event)).Inc()
	o.duration.WithLabelValues(event.Name).Observe(event.Duration.Seconds())
}

// outcomeLabel is "ok" for success, otherwise the lower-cased error kind.
func outcomeLabel(event UseCaseEvent) string {
	if event.Success {
		return "ok"
	}
	kind := domain.KindOf(event.Err)
	if kind == "" {
		kind = domain.KindInternal
	}
	return strings.ToLower(string(kind))
}
