package irrigation_controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/LeonardoBeccarini/flora/internal/log"
	"github.com/LeonardoBeccarini/flora/internal/model/messages"
	"github.com/LeonardoBeccarini/flora/internal/services/event"
	"github.com/LeonardoBeccarini/flora/pkg/dedup"
)

// Inbox queues control requests from the transports until the next cycle.
type Inbox struct {
	mu   sync.Mutex
	reqs []messages.ControlRequest
	wake chan struct{}
}

func NewInbox() *Inbox {
	return &Inbox{wake: make(chan struct{}, 1)}
}

// Submit queues req and wakes the run loop. It never blocks.
func (i *Inbox) Submit(req messages.ControlRequest) {
	i.mu.Lock()
	i.reqs = append(i.reqs, req)
	i.mu.Unlock()
	select {
	case i.wake <- struct{}{}:
	default:
	}
}

// Drain returns the queued requests in arrival order and empties the queue.
func (i *Inbox) Drain() []messages.ControlRequest {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := i.reqs
	i.reqs = nil
	return out
}

// Wake fires after a Submit.
func (i *Inbox) Wake() <-chan struct{} { return i.wake }

func (i *Inbox) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.reqs)
}

// Control turns the MQTT control topics into control requests:
//
//	<base>/man_irr_cmd            pump number (1..n) or name, or {"pump":..,"duration":<s>}
//	<base>/man_irr_duration_ctrl  seconds
//	<base>/auto_irr_ctrl          0|1
type Control struct {
	topics  event.Topics
	inbox   *Inbox
	deduper *dedup.Deduper
	now     func() time.Time
}

func NewControl(base string, inbox *Inbox, d *dedup.Deduper) *Control {
	return &Control{topics: event.Topics{Base: base}, inbox: inbox, deduper: d, now: time.Now}
}

// Filters returns the topics to subscribe to.
func (c *Control) Filters() []string {
	return []string{c.topics.ManIrrCmd(), c.topics.ManIrrDurationCtrl(), c.topics.AutoIrrCtrl()}
}

// Handle is the broker handler of the control topics.
func (c *Control) Handle(topic string, msg mqtt.Message) error {
	// QoS 1 redeliveries carry the duplicate flag and the ID of the original
	if c.deduper != nil && msg.MessageID() != 0 {
		seen := !c.deduper.ShouldProcess(topic + "#" + strconv.Itoa(int(msg.MessageID())))
		if seen && msg.Duplicate() {
			log.Debugf("controller: duplicate control message on %s dropped", topic)
			return nil
		}
	}

	payload := strings.TrimSpace(string(msg.Payload()))
	req := messages.ControlRequest{Source: "mqtt", At: c.now()}
	switch topic {
	case c.topics.ManIrrCmd():
		if msg.Retained() {
			// a retained command would start the pump again on every reconnect
			log.Warnf("controller: retained manual irrigation command ignored")
			return nil
		}
		pump, dur, err := parseManual(payload)
		if err != nil {
			return fmt.Errorf("man_irr_cmd: %w", err)
		}
		req.Kind, req.Pump, req.Duration = messages.ControlManualIrrigation, pump, dur
	case c.topics.ManIrrDurationCtrl():
		secs, err := strconv.Atoi(payload)
		if err != nil || secs <= 0 {
			return fmt.Errorf("man_irr_duration_ctrl: bad duration %q", payload)
		}
		req.Kind, req.Duration = messages.ControlManualDuration, time.Duration(secs)*time.Second
	case c.topics.AutoIrrCtrl():
		on, err := strconv.ParseBool(payload)
		if err != nil {
			return fmt.Errorf("auto_irr_ctrl: bad flag %q", payload)
		}
		req.Kind, req.Enabled = messages.ControlAutoIrrigation, on
	default:
		return fmt.Errorf("unexpected control topic %s", topic)
	}
	log.Infof("controller: control request %s received on %s", req.Kind, topic)
	c.inbox.Submit(req)
	return nil
}

func parseManual(payload string) (string, time.Duration, error) {
	if !strings.HasPrefix(payload, "{") {
		if payload == "" {
			return "", 0, errors.New("empty pump reference")
		}
		return payload, 0, nil
	}
	var body struct {
		Pump     json.RawMessage `json:"pump"`
		Duration int             `json:"duration"`
	}
	if err := json.Unmarshal([]byte(payload), &body); err != nil {
		return "", 0, fmt.Errorf("bad payload: %w", err)
	}
	pump := strings.Trim(string(body.Pump), `"`)
	if pump == "" {
		return "", 0, errors.New("missing pump")
	}
	if body.Duration < 0 {
		return "", 0, fmt.Errorf("negative duration %d", body.Duration)
	}
	return pump, time.Duration(body.Duration) * time.Second, nil
}
