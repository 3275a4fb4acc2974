// Package notify sends operator alerts about market lifecycle events to chat
// channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// sendTimeout bounds a single delivery so one slow webhook cannot hold up
// the relay.
const sendTimeout = 15 * time.Second

// Sender delivers one alert to one channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier delivers each alert to every configured Sender in parallel.
type Notifier struct {
	senders []Sender
	allow   map[string]struct{}
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. events is the allow list applied by
// Notify. It may be empty to allow every event.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allow := make(map[string]struct{}, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allow[e] = struct{}{}
		}
	}
	return &Notifier{
		senders: senders,
		allow:   allow,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

func (n *Notifier) Enabled() bool { return len(n.senders) > 0 }

func (n *Notifier) Allows(event string) bool {
	if len(n.allow) == 0 {
		return true
	}
	_, ok := n.allow[event]
	return ok
}

// Notify delivers the alert if event is on the allow list.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.Allows(event) {
		n.logger.DebugContext(ctx, "alert suppressed", slog.String("event", event))
		return nil
	}
	return n.broadcast(ctx, title, message)
}

// NotifyAll bypasses the allow list.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.broadcast(ctx, title, message)
}

// broadcast reports every failed sender, not just the first.
func (n *Notifier) broadcast(ctx context.Context, title, message string) error {
	errs := make([]error, len(n.senders))
	var g errgroup.Group
	for i, s := range n.senders {
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(ctx, sendTimeout)
			defer cancel()
			if err := s.Send(sctx, title, message); err != nil {
				n.logger.WarnContext(ctx, "alert delivery failed",
					slog.String("sender", s.Name()),
					slog.String("title", title),
					slog.String("error", err.Error()),
				)
				errs[i] = fmt.Errorf("%s: %w", s.Name(), err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}
