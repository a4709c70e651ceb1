package sync

import (
	"errors"
	"fmt"
)

var ErrUnknownDirection = errors.New("unknown direction")

// Side names one of the two replicas of a collection.
type Side string

const (
	SideLocal Side = "local"
	SideCloud Side = "cloud"
)

// StorageError is a read or write failure against a replica during a pass.
// It is fatal to the current pass of its collection only.
type StorageError struct {
	Collection string
	Side       Side
	Table      string
	Op         string
	ID         string
	Err        error
}

func (e *StorageError) Error() string {
	target := e.Table
	if e.ID != "" {
		target = fmt.Sprintf("%s/%s", e.Table, e.ID)
	}
	if e.Side != "" {
		return fmt.Sprintf("collection %s: %s %s (%s): %v", e.Collection, e.Op, target, e.Side, e.Err)
	}
	return fmt.Sprintf("collection %s: %s %s: %v", e.Collection, e.Op, target, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
