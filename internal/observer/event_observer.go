package observer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Stage is a step of the background removal request lifecycle.
type Stage string

const (
	StageReceived  Stage = "RECEIVED"
	StageValidated Stage = "VALIDATED"
	StageDecoded   Stage = "DECODED"
	StageSegmented Stage = "SEGMENTED"
	StageEncoded   Stage = "ENCODED"
	StageResponded Stage = "RESPONDED"
	StageErrored   Stage = "ERRORED"
)

// Terminal reports whether no transition can follow s.
func (s Stage) Terminal() bool {
	return s == StageResponded || s == StageErrored
}

// RequestEvent is published on every stage transition of a request.
type RequestEvent struct {
	Stage      Stage                  `json:"stage"`
	From       Stage                  `json:"from,omitempty"`
	RequestID  string                 `json:"request_id"`
	Timestamp  time.Time              `json:"timestamp"`
	Elapsed    time.Duration          `json:"elapsed"`
	StatusCode int                    `json:"status_code,omitempty"`
	ErrorType  string                 `json:"error_type,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Observer defines the interface for event observers
type Observer interface {
	OnEvent(ctx context.Context, event RequestEvent)
	GetObserverName() string
}

// Subject defines the interface for event publishers
type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	NotifyObservers(ctx context.Context, event RequestEvent)
}

// LoggingObserver logs request transitions
type LoggingObserver struct {
	logger *logrus.Logger
}

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver(logger *logrus.Logger) Observer {
	return &LoggingObserver{
		logger: logger,
	}
}

// OnEvent logs one line per transition; failures carry the full cause.
func (o *LoggingObserver) OnEvent(ctx context.Context, event RequestEvent) {
	fields := logrus.Fields{
		"request_id": event.RequestID,
		"stage":      event.Stage,
		"elapsed":    event.Elapsed.String(),
	}
	if event.From != "" {
		fields["from"] = event.From
	}
	for k, v := range event.Metadata {
		fields[k] = v
	}

	entry := o.logger.WithFields(fields)
	switch event.Stage {
	case StageErrored:
		entry = entry.WithFields(logrus.Fields{
			"status":     event.StatusCode,
			"error_type": event.ErrorType,
			"error":      event.Error,
		})
		// Rejected input is the client's problem, not a server fault.
		if event.StatusCode >= 400 && event.StatusCode < 500 {
			entry.Warn("Background removal rejected")
		} else {
			entry.Error("Background removal failed")
		}
	case StageResponded:
		entry.WithField("status", event.StatusCode).Info("Background removal completed")
	default:
		entry.Info("Request stage transition")
	}
}

// GetObserverName returns the observer name
func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

// Stats is a point in time snapshot of request counters.
type Stats struct {
	Received       int64            `json:"received"`
	Completed      int64            `json:"completed"`
	Failed         int64            `json:"failed"`
	InFlight       int64            `json:"in_flight"`
	FailuresByType map[string]int64 `json:"failures_by_type"`
	TotalTime      string           `json:"total_processing_time"`
	AvgTime        string           `json:"avg_processing_time"`
}

// MetricsObserver collects counters from request events
type MetricsObserver struct {
	mu             sync.RWMutex
	received       int64
	completed      int64
	failed         int64
	failuresByType map[string]int64
	totalTime      time.Duration
}

// NewMetricsObserver creates a new metrics observer
func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{failuresByType: make(map[string]int64)}
}

// OnEvent handles request events by collecting metrics
func (o *MetricsObserver) OnEvent(ctx context.Context, event RequestEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch event.Stage {
	case StageReceived:
		o.received++
	case StageResponded:
		o.completed++
		o.totalTime += event.Elapsed
	case StageErrored:
		o.failed++
		o.failuresByType[event.ErrorType]++
	}
}

// GetObserverName returns the observer name
func (o *MetricsObserver) GetObserverName() string {
	return "metrics_observer"
}

// Snapshot returns the current counters.
func (o *MetricsObserver) Snapshot() Stats {
	o.mu.RLock()
	defer o.mu.RUnlock()

	avg := time.Duration(0)
	if o.completed > 0 {
		avg = o.totalTime / time.Duration(o.completed)
	}

	byType := make(map[string]int64, len(o.failuresByType))
	for k, v := range o.failuresByType {
		byType[k] = v
	}

	return Stats{
		Received:       o.received,
		Completed:      o.completed,
		Failed:         o.failed,
		InFlight:       o.received - o.completed - o.failed,
		FailuresByType: byType,
		TotalTime:      o.totalTime.String(),
		AvgTime:        avg.String(),
	}
}

// EventPublisher implements the Subject interface
type EventPublisher struct {
	mu        sync.RWMutex
	observers []Observer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher() *EventPublisher {
	return &EventPublisher{
		observers: make([]Observer, 0),
	}
}

// Subscribe adds an observer
func (p *EventPublisher) Subscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, observer)
}

// Unsubscribe removes an observer
func (p *EventPublisher) Unsubscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, obs := range p.observers {
		if obs.GetObserverName() == observer.GetObserverName() {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			break
		}
	}
}

// NotifyObservers delivers event to every observer in subscription order,
// on the caller's goroutine, so events of one request stay ordered.
func (p *EventPublisher) NotifyObservers(ctx context.Context, event RequestEvent) {
	p.mu.RLock()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	for _, observer := range observers {
		notify(ctx, observer, event)
	}
}

func notify(ctx context.Context, obs Observer, event RequestEvent) {
	defer func() {
		if r := recover(); r != nil {
			// Log panic but don't crash the application
			logrus.WithField("observer", obs.GetObserverName()).
				WithField("panic", r).
				Error("Observer panicked while handling event")
		}
	}()
	obs.OnEvent(ctx, event)
}
