package entities

// TankStatus is the water tank fill level read from the two level switches.
type TankStatus struct {
	Low   bool `json:"low"`
	Empty bool `json:"empty"`
	// Unknown is set when the level inputs could not be read; the tank is
	// then reported low and empty.
	Unknown bool `json:"unknown,omitempty"`
}

// UnknownTank is the status used when the signal is unavailable.
var UnknownTank = TankStatus{Low: true, Empty: true, Unknown: true}

// Level encodes the status the way it is published: 0 empty, 1 low, 2 ok.
func (t TankStatus) Level() int {
	switch {
	case t.Empty:
		return 0
	case t.Low:
		return 1
	default:
		return 2
	}
}

func (t TankStatus) String() string {
	switch t.Level() {
	case 0:
		return "empty"
	case 1:
		return "low"
	default:
		return "ok"
	}
}
