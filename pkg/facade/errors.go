package facade

import (
	"errors"

	"accessgraph/pkg/accesserr"
)

// IsInvalidGraph reports whether err is (or wraps) accesserr.ErrInvalidGraph
// — a fatal error for the handle construct attempted to create. Binding
// layers map this with an errors.Is dispatch to a caller-facing status.
func IsInvalidGraph(err error) bool {
	return errors.Is(err, accesserr.ErrInvalidGraph)
}

// IsOutOfBoundsExternalID reports whether err is (or wraps)
// accesserr.ErrOutOfBoundsExternalID, the invalid-argument case raised when
// a caller passes an external ID that was never registered at construct.
func IsOutOfBoundsExternalID(err error) bool {
	return errors.Is(err, accesserr.ErrOutOfBoundsExternalID)
}
