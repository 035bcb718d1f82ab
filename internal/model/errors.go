package model

import "errors"

// Sentinel errors for entity normalization.
var (
	// ErrEmptyDefinition indicates the raw hardware definition held no
	// panel objects at all.
	ErrEmptyDefinition = errors.New("model: hardware definition contains no panels")

	// ErrUnknownUnits indicates a temperature conversion between
	// unrecognised scales.
	ErrUnknownUnits = errors.New("model: unknown temperature units")
)
