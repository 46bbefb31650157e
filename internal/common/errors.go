// Package common defines shared constants and sentinel errors used across
// StoreFlight components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Artifact store / lookup errors.
	ErrorNotFound = errors.New("not found")

	// Local input errors.
	ErrorInvalidFile = errors.New("invalid file")
)
