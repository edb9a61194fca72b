// Package system provides the wall clock used by the storefront services.
package system

import "time"

// Clock implements shop.Clock and admission.Clock using UTC wall time.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
