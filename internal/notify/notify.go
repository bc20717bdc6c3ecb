// Package notify delivers operator alerts to push channels. Every delivery
// attempt produces a per-channel result; failures never stop the caller.
package notify

import (
	"context"

	"github.com/couchcryptid/wind-telemetry-etl/internal/anomaly"
)

// DefaultTitle is used when a message carries no title.
const DefaultTitle = "Wind Telemetry Alert"

// Priority follows the ntfy priority names.
type Priority string

const (
	PriorityMin     Priority = "min"
	PriorityLow     Priority = "low"
	PriorityDefault Priority = "default"
	PriorityHigh    Priority = "high"
	PriorityUrgent  Priority = "urgent"
)

// Color is the Discord embed color for the priority.
func (p Priority) Color() int {
	switch p {
	case PriorityMin:
		return 0x95A5A6
	case PriorityLow:
		return 0x3498DB
	case PriorityDefault:
		return 0x2ECC71
	case PriorityHigh:
		return 0xF39C12
	case PriorityUrgent:
		return 0xE74C3C
	default:
		return 0x3498DB
	}
}

// PriorityFromSeverity maps an anomaly severity onto a channel priority.
func PriorityFromSeverity(s anomaly.Severity) Priority {
	switch s {
	case anomaly.SeverityLow:
		return PriorityLow
	case anomaly.SeverityHigh:
		return PriorityHigh
	default:
		return PriorityDefault
	}
}

// Message is one alert.
type Message struct {
	Title    string
	Body     string
	Priority Priority
	// Tags are ntfy emoji shortcodes; Discord ignores them.
	Tags []string
}

func (m Message) title() string {
	if m.Title == "" {
		return DefaultTitle
	}
	return m.Title
}

func (m Message) priority() Priority {
	if m.Priority == "" {
		return PriorityDefault
	}
	return m.Priority
}

// AnomalyMessage builds the alert for a detector report.
func AnomalyMessage(r anomaly.Report) Message {
	tags := []string{"warning", "chart_with_downwards_trend"}
	if r.Kind == anomaly.KindStatistical {
		tags = []string{"warning", "chart_with_upwards_trend"}
	}
	return Message{
		Title:    r.Title(),
		Body:     r.Message(),
		Priority: PriorityFromSeverity(r.Severity),
		Tags:     tags,
	}
}

// Channel is a single delivery target.
type Channel interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// Notifier fans a message out to its channels.
type Notifier interface {
	Notify(ctx context.Context, msg Message) DispatchResult
}
