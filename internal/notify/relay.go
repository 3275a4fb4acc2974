package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/afrifutures/marketd/internal/domain"
)

// BusRelay turns market events from the signal bus into operator alerts.
type BusRelay struct {
	bus      domain.SignalBus
	notifier *Notifier
	logger   *slog.Logger
}

// relayChannels are the bus channels worth alerting on.
var relayChannels = []string{domain.ChannelMarketResolved, domain.ChannelOracleFailure}

// NewBusRelay creates a BusRelay.
func NewBusRelay(bus domain.SignalBus, notifier *Notifier, logger *slog.Logger) *BusRelay {
	return &BusRelay{bus: bus, notifier: notifier, logger: logger.With(slog.String("component", "notify_relay"))}
}

// Run forwards events until ctx is cancelled.
func (r *BusRelay) Run(ctx context.Context) error {
	merged := make(chan []byte)
	for _, ch := range relayChannels {
		sub, err := r.bus.Subscribe(ctx, ch)
		if err != nil {
			return fmt.Errorf("notify: subscribe %s: %w", ch, err)
		}
		go func() {
			for msg := range sub {
				select {
				case merged <- msg:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-merged:
			r.handle(ctx, msg)
		}
	}
}

func (r *BusRelay) handle(ctx context.Context, payload []byte) {
	var ev domain.MarketEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		r.logger.WarnContext(ctx, "drop malformed event", slog.String("error", err.Error()))
		return
	}
	title, message, ok := Format(ev)
	if !ok {
		return
	}
	if err := r.notifier.Notify(ctx, ev.Type, title, message); err != nil {
		r.logger.WarnContext(ctx, "alert not delivered",
			slog.String("event", ev.Type),
			slog.Int64("market_id", ev.MarketID),
			slog.String("error", err.Error()),
		)
	}
}

// Format renders an alert for ev. It reports false for events that do not
// produce alerts.
func Format(ev domain.MarketEvent) (title, message string, ok bool) {
	switch ev.Type {
	case domain.ChannelMarketResolved:
		outcome := "NO"
		if ev.Outcome != nil && *ev.Outcome {
			outcome = "YES"
		}
		return fmt.Sprintf("Market %d resolved %s", ev.MarketID, outcome),
			fmt.Sprintf("%s settled at %d. Pools: YES %d / NO %d.", ev.Commodity, ev.Price, ev.YesPool, ev.NoPool),
			true
	case domain.ChannelOracleFailure:
		return fmt.Sprintf("Oracle failure on market %d", ev.MarketID),
			fmt.Sprintf("%s: %s. The resolver will retry.", ev.Commodity, ev.Error),
			true
	default:
		return "", "", false
	}
}
