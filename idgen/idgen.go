// Package idgen generates message, correlation and conversation ids.
package idgen

import "github.com/google/uuid"

// New returns a fresh random id, suitable for message ids and correlation ids.
func New() string {
	return uuid.NewString()
}
