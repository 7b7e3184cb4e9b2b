package sensor

import (
	"context"
	"errors"

	"github.com/LeonardoBeccarini/flora/internal/model/messages"
)

// ErrUnavailable is returned by a Source that has no data for a sensor.
var ErrUnavailable = errors.New("sensor: no data available")

// Source delivers the latest payload of a sensor.
type Source interface {
	Fetch(ctx context.Context, sensorID string) (messages.SensorData, error)
}
