package tool

import "errors"

var (
	// ErrEmptyName is returned when registering a tool with an empty name.
	ErrEmptyName = errors.New("tool name must not be empty")

	// ErrDuplicate is returned when registering a tool whose name is
	// already taken.
	ErrDuplicate = errors.New("tool already registered")
)

// errMissingServerName rejects registry entries without a name.
var errMissingServerName = errors.New("server entry missing name")
