package dispatch

import "github.com/kilianp07/gridcourier/core/model"

// Reason explains why an order was not assigned.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonAllBusy        Reason = "ALL_BUSY"
	ReasonWeightTooHeavy Reason = "WEIGHT_TOO_HEAVY"
	ReasonNoPathFound    Reason = "NO_PATH_FOUND"
)

// Candidate is a ranked courier considered for an order.
type Candidate struct {
	CourierID      string           `json:"courierId"`
	Distance       float64          `json:"distance"`
	CompletedToday int              `json:"completedOrdersToday"`
	Transport      string           `json:"transportType"`
	Path           []model.Location `json:"path,omitempty"`
}

// Result is the outcome of an assignment attempt. No-match outcomes carry a
// Reason and are not errors.
type Result struct {
	OrderID   string           `json:"orderId"`
	Assigned  bool             `json:"assigned"`
	Queued    bool             `json:"queued"`
	Reason    Reason           `json:"reason,omitempty"`
	CourierID string           `json:"courierId,omitempty"`
	Distance  float64          `json:"distance,omitempty"`
	Transport string           `json:"transportType,omitempty"`
	Path      []model.Location `json:"path,omitempty"`
	// Candidates holds the nearest ranked couriers with their paths.
	Candidates []Candidate `json:"candidates,omitempty"`

	// Set for WEIGHT_TOO_HEAVY.
	OrderWeight    float64   `json:"orderWeight,omitempty"`
	FreeCapacities []float64 `json:"freeCapacities,omitempty"`
}

// Completion is the outcome of CompleteOrder.
type Completion struct {
	CourierID string `json:"courierId"`
	OrderID   string `json:"orderId"`
	// Drained is set when the queue head was handed to the freed courier.
	Drained *Result `json:"drained,omitempty"`
	// HeadTooHeavy is set when the queue head did not fit the courier.
	// Entries behind the head are never inspected.
	HeadTooHeavy bool `json:"headTooHeavy,omitempty"`
}

// ProcessResult summarises a ProcessQueue sweep.
type ProcessResult struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Remaining int `json:"remaining"`
}
