// Package plans serves the investment plan catalogue shown on the landing
// page, the invest page and the admin back office.
package plans

import (
	"errors"

	"github.com/google/uuid"
)

// ErrPlanNotFound is returned when a plan id does not exist.
var ErrPlanNotFound = errors.New("plans: plan not found")

// Plan is an investment plan offered to clients.
type Plan struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	Features    []string  `json:"features"`
	Popular     bool      `json:"popular"`
	SoldOut     bool      `json:"sold_out"`
	SortOrder   int       `json:"sort_order"`
}

// Available reports whether the plan can still be subscribed to.
func (p Plan) Available() bool {
	return !p.SoldOut
}
