package model

import (
	"encoding/json"
	"fmt"
)

// Transport describes how a courier moves and how much it can carry.
type Transport struct {
	Name      string
	MaxWeight float64
	Speed     float64 // relative to a walker
}

var (
	Walker  = Transport{Name: "walker", MaxWeight: 5, Speed: 1.0}
	Bicycle = Transport{Name: "bicycle", MaxWeight: 15, Speed: 1.5}
	Scooter = Transport{Name: "scooter", MaxWeight: 50, Speed: 2.0}
	Car     = Transport{Name: "car", MaxWeight: 50, Speed: 2.5}
)

var transports = []Transport{Walker, Bicycle, Scooter, Car}

// Transports returns every known transport profile.
func Transports() []Transport {
	out := make([]Transport, len(transports))
	copy(out, transports)
	return out
}

// TransportByName looks up a profile by its name.
func TransportByName(name string) (Transport, error) {
	for _, t := range transports {
		if t.Name == name {
			return t, nil
		}
	}
	return Transport{}, fmt.Errorf("%w: %q", ErrUnknownTransport, name)
}

// SuitableTransports lists the profiles able to carry weight.
func SuitableTransports(weight float64) []Transport {
	var out []Transport
	for _, t := range transports {
		if t.CanCarry(weight) {
			out = append(out, t)
		}
	}
	return out
}

// CanCarry reports whether weight fits the profile capacity.
func (t Transport) CanCarry(weight float64) bool { return weight <= t.MaxWeight }

// MarshalJSON encodes the profile by name.
func (t Transport) MarshalJSON() ([]byte, error) { return json.Marshal(t.Name) }

// UnmarshalJSON resolves a profile name.
func (t *Transport) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	tr, err := TransportByName(name)
	if err != nil {
		return err
	}
	*t = tr
	return nil
}
