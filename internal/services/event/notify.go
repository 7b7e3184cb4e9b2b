package event

import (
	"context"
	"errors"
	"fmt"
	"io"
	stdlog "log"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"
	"github.com/sony/gobreaker"

	"github.com/LeonardoBeccarini/flora/internal/model/messages"
	"github.com/LeonardoBeccarini/flora/pkg/breaker"
)

// Sender delivers one plain text notification; *router.ServiceRouter
// implements it.
type Sender interface {
	Send(message string, params *stypes.Params) []error
}

// Notifier pushes alert events to the configured shoutrrr services.
type Notifier struct {
	Nop

	sender Sender
	cb     *gobreaker.CircuitBreaker
	title  string
}

// NewNotifier builds a sender for urls (e.g. "telegram://token@telegram?chats=1").
func NewNotifier(urls []string, timeout time.Duration, cb *gobreaker.CircuitBreaker) (*Notifier, error) {
	if len(urls) == 0 {
		return nil, errors.New("notify: at least one URL is required")
	}
	sr, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		return nil, fmt.Errorf("notify: create sender: %w", err)
	}
	if timeout > 0 {
		sr.Timeout = timeout
	}
	sr.SetLogger(stdlog.New(io.Discard, "", 0))
	return newNotifier(sr, cb), nil
}

var _ Sender = (*router.ServiceRouter)(nil)

func newNotifier(s Sender, cb *gobreaker.CircuitBreaker) *Notifier {
	return &Notifier{sender: s, cb: cb, title: "flora"}
}

func (n *Notifier) Alert(_ context.Context, ev messages.AlertEvent) error {
	params := stypes.Params{}
	params.SetTitle(fmt.Sprintf("%s: %s", n.title, ev.Class))
	body := ev.Message
	err := breaker.Do(n.cb, func() error {
		return errors.Join(n.sender.Send(body, &params)...)
	})
	if err != nil {
		return fmt.Errorf("notify: alert %s: %w", ev.ID, err)
	}
	return nil
}
