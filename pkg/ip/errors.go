package ip

import "errors"

// percentageTolerance is the slack allowed when validating that
// credit and contribution percentages sum to their bounds.
const percentageTolerance = 0.01

// ErrNoRecord indicates no IP record exists for the object hash.
var ErrNoRecord = errors.New("no IP record")

// ErrIncompatible covers compatibility failures: conflicting
// licenses, or percentages that break their invariants.
var ErrIncompatible = errors.New("incompatible")
