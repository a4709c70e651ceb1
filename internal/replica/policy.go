package replica

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidDirection = errors.New("invalid direction")
	ErrInvalidPolicy    = errors.New("invalid conflict policy")
)

// Direction controls which replica(s) a pass is allowed to write to.
type Direction int

const (
	// L2C copies changed local records to the cloud.
	L2C Direction = iota + 1
	// C2L copies changed cloud records to local.
	C2L
	// Both propagates in either direction and resolves conflicts.
	Both
	// OverwriteLocal treats the cloud as authoritative.
	OverwriteLocal
	// OverwriteCloud treats local as authoritative.
	OverwriteCloud
)

var directionNames = map[Direction]string{
	L2C:            "l2c",
	C2L:            "c2l",
	Both:           "both",
	OverwriteLocal: "overwrite_local",
	OverwriteCloud: "overwrite_cloud",
}

func (d Direction) String() string {
	if s, ok := directionNames[d]; ok {
		return s
	}
	return fmt.Sprintf("Direction(%d)", int(d))
}

// ParseDirection maps the configuration spelling to a Direction.
func ParseDirection(s string) (Direction, error) {
	for d, name := range directionNames {
		if name == s {
			return d, nil
		}
	}
	return 0, fmt.Errorf("%w %q: must be one of l2c|c2l|both|overwrite_local|overwrite_cloud", ErrInvalidDirection, s)
}

// ConflictPolicy selects the winner when both replicas changed the same record.
type ConflictPolicy int

const (
	LatestWins ConflictPolicy = iota
	PreferLocal
	PreferCloud
)

var policyNames = map[ConflictPolicy]string{
	LatestWins:  "latest_wins",
	PreferLocal: "prefer_local",
	PreferCloud: "prefer_cloud",
}

func (p ConflictPolicy) String() string {
	if s, ok := policyNames[p]; ok {
		return s
	}
	return fmt.Sprintf("ConflictPolicy(%d)", int(p))
}

// ParseConflictPolicy maps the configuration spelling to a ConflictPolicy.
// An empty string selects LatestWins.
func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	if s == "" {
		return LatestWins, nil
	}
	for p, name := range policyNames {
		if name == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w %q: must be one of latest_wins|prefer_local|prefer_cloud", ErrInvalidPolicy, s)
}

// Collection is the static sync configuration for one pair of tables.
type Collection struct {
	Name       string
	LocalTable string
	CloudTable string
	Direction  Direction
	Policy     ConflictPolicy
}
