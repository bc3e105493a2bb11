// Package accesserr holds the error handling design's sentinel kinds,
// shared by every package that can surface one of them.
package accesserr

import "github.com/pkg/errors"

// Sentinel kinds. Callers match with errors.Is; wrapped instances still
// carry caller-specific context in their message.
var (
	// ErrInvalidGraph is returned from construct for malformed input:
	// negative/NaN weight, out-of-range node, empty node set.
	ErrInvalidGraph = errors.New("invalid graph")

	// ErrUnknownCategory means a POI or attribute category was not
	// registered. Per policy this is never returned to a caller directly —
	// operations that can hit it return an empty result instead — but it is
	// still useful internally and in tests.
	ErrUnknownCategory = errors.New("unknown category")

	// ErrUnknownAggregation means an aggtyp string is not in the accepted set.
	ErrUnknownAggregation = errors.New("unknown aggregation")

	// ErrUnknownDecay means a decay string is not in the accepted set.
	ErrUnknownDecay = errors.New("unknown decay")

	// ErrUnreachable marks a route/distance query between nodes with no path.
	ErrUnreachable = errors.New("unreachable")

	// ErrOutOfBoundsExternalID means an external node ID is unknown to the facade.
	ErrOutOfBoundsExternalID = errors.New("external id out of bounds")
)

// Wrap annotates err with msg while preserving errors.Is/As against the
// sentinel kinds above.
func Wrap(err error, msg string) error {
	return errors.Wrap(err, msg)
}

// Wrapf is Wrap with a format string.
func Wrapf(err error, format string, args ...any) error {
	return errors.Wrapf(err, format, args...)
}
