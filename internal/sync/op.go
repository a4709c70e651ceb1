package sync

import "github.com/openmined/replisync/internal/replica"

type OpType string

const (
	OpSkip           OpType = "Skip"
	OpWriteCloud     OpType = "WriteCloud"
	OpWriteLocal     OpType = "WriteLocal"
	OpMerge          OpType = "Merge"
	OpMergeTombstone OpType = "MergeTombstone"
)

// Decision is the outcome of propagating one changed id.
type Decision struct {
	Op     OpType
	ID     string
	Reason string
	// Written is the record written to the target side(s); nil for OpSkip.
	Written *replica.Record
}

// Writes returns how many replica writes the decision performed.
func (d Decision) Writes() int {
	switch d.Op {
	case OpWriteCloud, OpWriteLocal:
		return 1
	case OpMerge, OpMergeTombstone:
		return 2
	}
	return 0
}

// step is the propagation input for one changed id.
type step struct {
	ID           string
	Local        *replica.Record
	Cloud        *replica.Record
	LocalChanged bool
	CloudChanged bool
}
