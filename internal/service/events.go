package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/afrifutures/marketd/internal/domain"
)

// Events fans market activity out to the signal bus and the audit log. Both
// sinks are best effort: a failure is logged and never fails the operation
// that produced the event. Either sink may be nil.
type Events struct {
	bus    domain.SignalBus
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewEvents creates an Events publisher.
func NewEvents(bus domain.SignalBus, audit domain.AuditStore, logger *slog.Logger) *Events {
	return &Events{bus: bus, audit: audit, logger: logger.With(slog.String("component", "events"))}
}

// Publish sends ev on channel.
func (e *Events) Publish(ctx context.Context, channel string, ev domain.MarketEvent) {
	if e == nil || e.bus == nil {
		return
	}
	if ev.Type == "" {
		ev.Type = channel
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		e.logger.WarnContext(ctx, "marshal market event failed", slog.String("error", err.Error()))
		return
	}
	if err := e.bus.Publish(ctx, channel, payload); err != nil {
		e.logger.WarnContext(ctx, "publish market event failed",
			slog.String("channel", channel),
			slog.Int64("market_id", ev.MarketID),
			slog.String("error", err.Error()),
		)
	}
}

// Audit appends an audit log row.
func (e *Events) Audit(ctx context.Context, event string, detail map[string]any) {
	if e == nil || e.audit == nil {
		return
	}
	if err := e.audit.Log(ctx, event, detail); err != nil {
		e.logger.WarnContext(ctx, "audit log write failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
