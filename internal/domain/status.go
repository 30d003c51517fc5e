package domain

import "time"

type Status string

const (
	StatusPending Status = "pending"
	StatusPicked  Status = "picked"
	StatusPacked  Status = "packed"
	StatusShipped Status = "shipped"
)

// Only the next stage is reachable; there are no backward transitions.
var validNext = map[Status]map[Status]bool{
	StatusPending: {StatusPicked: true},
	StatusPicked:  {StatusPacked: true},
	StatusPacked:  {StatusShipped: true},
	StatusShipped: {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

// StatusChange carries what a transition writes: the new status, the stage
// timestamp and, for picked/packed, the assigned worker.
type StatusChange struct {
	To       Status
	WorkerID *int64
	At       time.Time
}

// Apply mutates o as the transition described by c would.
func (o *Order) Apply(c StatusChange) {
	at := c.At
	switch c.To {
	case StatusPicked:
		o.PickerID = c.WorkerID
		o.PickedAt = &at
	case StatusPacked:
		o.PackerID = c.WorkerID
		o.PackedAt = &at
	case StatusShipped:
		o.ShippedAt = &at
	}
	o.Status = c.To
}
