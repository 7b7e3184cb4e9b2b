package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/LeonardoBeccarini/flora/internal/log"
	"github.com/LeonardoBeccarini/flora/internal/model/entities"
)

var ErrTankUnavailable = errors.New("tank signal unavailable")

// TankReader returns the fresh state of the two level switches.
type TankReader interface {
	ReadTank(ctx context.Context) (entities.TankStatus, error)
}

// MQTTTank caches the last tank signal received over MQTT. The payload is
// either the level code (0 empty, 1 low, 2 ok) or {"low":..,"empty":..}.
type MQTTTank struct {
	mu     sync.Mutex
	status entities.TankStatus
	at     time.Time
	maxAge time.Duration
	now    func() time.Time
}

func NewMQTTTank(maxAge time.Duration) *MQTTTank {
	return &MQTTTank{maxAge: maxAge, now: time.Now}
}

// Handle is the broker handler of the tank signal topic.
func (t *MQTTTank) Handle(_ string, msg mqtt.Message) error {
	st, err := ParseTank(msg.Payload())
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.status, t.at = st, t.now()
	t.mu.Unlock()
	log.Debugf("device: tank signal %s", st)
	return nil
}

func (t *MQTTTank) ReadTank(context.Context) (entities.TankStatus, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.at.IsZero() {
		return entities.UnknownTank, ErrTankUnavailable
	}
	if t.maxAge > 0 && t.now().Sub(t.at) > t.maxAge {
		return entities.UnknownTank, fmt.Errorf("last signal at %s: %w", t.at.Format(time.RFC3339), ErrTankUnavailable)
	}
	return t.status, nil
}

// ParseTank decodes a tank signal payload.
func ParseTank(b []byte) (entities.TankStatus, error) {
	s := strings.TrimSpace(string(b))
	if n, err := strconv.Atoi(s); err == nil {
		switch n {
		case 0:
			return entities.TankStatus{Low: true, Empty: true}, nil
		case 1:
			return entities.TankStatus{Low: true}, nil
		case 2:
			return entities.TankStatus{}, nil
		}
		return entities.TankStatus{}, fmt.Errorf("tank level %d out of range", n)
	}
	var st entities.TankStatus
	if err := json.Unmarshal(b, &st); err != nil {
		return entities.TankStatus{}, fmt.Errorf("bad tank payload %q: %w", s, err)
	}
	st.Unknown = false
	if st.Empty {
		st.Low = true
	}
	return st, nil
}

// StaticTank always reports the same status.
type StaticTank struct {
	mu     sync.Mutex
	status entities.TankStatus
	err    error
}

func NewStaticTank(st entities.TankStatus) *StaticTank { return &StaticTank{status: st} }

// Set changes the reported status, or makes reads fail when err is not nil.
func (s *StaticTank) Set(st entities.TankStatus, err error) {
	s.mu.Lock()
	s.status, s.err = st, err
	s.mu.Unlock()
}

func (s *StaticTank) ReadTank(context.Context) (entities.TankStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return entities.UnknownTank, s.err
	}
	return s.status, nil
}
