package tracker

import "errors"

var (
	// ErrInvalidAddress is returned when an address string fails
	// decoding or belongs to another network.
	ErrInvalidAddress = errors.New("invalid bitcoin address")
)
