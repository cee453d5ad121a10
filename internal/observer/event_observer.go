package observer

import (
	"context"
	"sync"
	"time"

	apperrors "go-vision-analyzer/internal/errors"

	"github.com/sirupsen/logrus"
)

// AnalysisEvent describes one step in the lifecycle of an analysis request
type AnalysisEvent struct {
	EventType      EventType              `json:"event_type"`
	Timestamp      time.Time              `json:"timestamp"`
	Model          string                 `json:"model"`
	ImageSource    string                 `json:"image_source"`
	ProcessingTime time.Duration          `json:"processing_time"`
	Success        bool                   `json:"success"`
	FailureKind    apperrors.ErrorType    `json:"failure_kind,omitempty"`
	ErrorMessage   string                 `json:"error_message,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// EventType represents the type of analysis event
type EventType string

const (
	// AnalysisStarted when analysis begins
	AnalysisStarted EventType = "analysis_started"
	// AnalysisCompleted when a structured result was produced
	AnalysisCompleted EventType = "analysis_completed"
	// AnalysisFailed when the request ends in a classified error
	AnalysisFailed EventType = "analysis_failed"
	// OutputRepaired when a repair heuristic recovered malformed JSON
	OutputRepaired EventType = "output_repaired"
)

// Observer defines the interface for event observers
type Observer interface {
	OnEvent(ctx context.Context, event AnalysisEvent)
	GetObserverName() string
}

// Subject defines the interface for event publishers
type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	NotifyObservers(ctx context.Context, event AnalysisEvent)
}

// LoggingObserver logs analysis events
type LoggingObserver struct {
	logger *logrus.Logger
}

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver(logger *logrus.Logger) Observer {
	return &LoggingObserver{
		logger: logger,
	}
}

// OnEvent handles analysis events by logging them
func (o *LoggingObserver) OnEvent(ctx context.Context, event AnalysisEvent) {
	fields := logrus.Fields{
		"event_type":      event.EventType,
		"model":           event.Model,
		"image_source":    event.ImageSource,
		"processing_time": event.ProcessingTime,
		"success":         event.Success,
	}

	if event.FailureKind != "" {
		fields["failure_kind"] = event.FailureKind
	}
	if event.ErrorMessage != "" {
		fields["error"] = event.ErrorMessage
	}
	for k, v := range event.Metadata {
		fields[k] = v
	}

	switch event.EventType {
	case AnalysisStarted:
		o.logger.WithFields(fields).Info("Vision analysis started")
	case AnalysisCompleted:
		o.logger.WithFields(fields).Info("Vision analysis completed")
	case AnalysisFailed:
		o.logger.WithFields(fields).Error("Vision analysis failed")
	case OutputRepaired:
		o.logger.WithFields(fields).Warn("Model output repaired")
	default:
		o.logger.WithFields(fields).Info("Analysis event occurred")
	}
}

// GetObserverName returns the observer name
func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

// MetricsObserver keeps process-wide counters from analysis events
type MetricsObserver struct {
	mu                   sync.RWMutex
	totalAnalyses        int64
	successfulAnalyses   int64
	upstreamFailures     int64
	unparseableFailures  int64
	otherFailures        int64
	repairedOutputs      int64
	totalProcessingTime  time.Duration
}

// NewMetricsObserver creates a new metrics observer
func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{}
}

// OnEvent handles analysis events by collecting metrics
func (o *MetricsObserver) OnEvent(ctx context.Context, event AnalysisEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch event.EventType {
	case AnalysisStarted:
		o.totalAnalyses++
	case AnalysisCompleted:
		o.successfulAnalyses++
		o.totalProcessingTime += event.ProcessingTime
	case OutputRepaired:
		o.repairedOutputs++
	case AnalysisFailed:
		switch event.FailureKind {
		case apperrors.ErrorTypeUpstream:
			o.upstreamFailures++
		case apperrors.ErrorTypeUnparseable:
			o.unparseableFailures++
		default:
			o.otherFailures++
		}
	}
}

// GetObserverName returns the observer name
func (o *MetricsObserver) GetObserverName() string {
	return "metrics_observer"
}

// GetMetrics returns current metrics
func (o *MetricsObserver) GetMetrics() map[string]interface{} {
	o.mu.RLock()
	defer o.mu.RUnlock()

	avgProcessingTime := time.Duration(0)
	if o.successfulAnalyses > 0 {
		avgProcessingTime = o.totalProcessingTime / time.Duration(o.successfulAnalyses)
	}

	return map[string]interface{}{
		"total_analyses":       o.totalAnalyses,
		"successful_analyses":  o.successfulAnalyses,
		"upstream_failures":    o.upstreamFailures,
		"unparseable_failures": o.unparseableFailures,
		"other_failures":       o.otherFailures,
		"repaired_outputs":     o.repairedOutputs,
		"avg_processing_time":  avgProcessingTime.String(),
	}
}

// EventPublisher implements the Subject interface
type EventPublisher struct {
	mu        sync.RWMutex
	observers []Observer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher() Subject {
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

// NotifyObservers notifies all observers of an event. Observers run
// synchronously so counters are consistent when the request returns;
// a panicking observer never takes the request down with it.
func (p *EventPublisher) NotifyObservers(ctx context.Context, event AnalysisEvent) {
	p.mu.RLock()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	for _, observer := range observers {
		func(obs Observer) {
			defer func() {
				if r := recover(); r != nil {
					logrus.WithField("observer", obs.GetObserverName()).
						WithField("panic", r).
						Error("Observer panicked while handling event")
				}
			}()
			obs.OnEvent(ctx, event)
		}(observer)
	}
}
