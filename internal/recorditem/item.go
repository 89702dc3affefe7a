// Package recorditem rebuilds transaction/record pairs into linked
// RecordItems.
//
// Items of one stream file are built by a left fold over the file's raw
// pairs in consensus order: each step takes the accumulator produced by the
// previous one, so a child can be linked to a parent built earlier in the
// same file. The fold is strictly sequential; files are independent.
package recorditem

import (
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/withObsrvr/obsrvr-stream-importer/internal/errata"
	"github.com/withObsrvr/obsrvr-stream-importer/internal/transaction"
)

var (
	// ErrBadTransactionBytes wraps envelope decode and type resolution failures.
	ErrBadTransactionBytes = errors.New("bad transaction bytes")

	// ErrBadRecordBytes wraps execution record decode failures.
	ErrBadRecordBytes = errors.New("bad record bytes")

	// ErrUnresolvedParent is returned in strict mode when a child's parent is
	// not within reach of the linking search.
	ErrUnresolvedParent = errors.New("unresolved parent")
)

// NoParent is the ParentIndex of an item without a resolved parent.
const NoParent = -1

// State is a step of the per-item reconstruction state machine.
type State int

const (
	StateCollectingTransaction State = iota
	StateCollectingRecord
	StateLinking
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCollectingTransaction:
		return "collecting_transaction"
	case StateCollectingRecord:
		return "collecting_record"
	case StateLinking:
		return "linking"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ItemError reports the failure of one item and the step it failed in.
type ItemError struct {
	Index int
	State State
	Err   error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item %d failed while %s: %v", e.Index, e.State, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

// RecordItem is one rebuilt transaction with its execution result. Items
// are immutable once the owning file has been built.
type RecordItem struct {
	Index       int
	HapiVersion *semver.Version

	TransactionBytes []byte
	RecordBytes      []byte
	Body             *transaction.DecodedBody
	Record           *transaction.ExecutionRecord

	TransactionType    int32
	EntityOperation    transaction.EntityOperation
	ConsensusTimestamp int64
	Payer              transaction.EntityID
	Successful         bool
	TransactionHash    []byte

	// IsChild is set when the record declares a parent timestamp, whether or
	// not the parent was found in this file.
	IsChild         bool
	ParentTimestamp int64
	ParentIndex     int

	// Bloom is the serialized log bloom of this item; empty when it emitted
	// no logs.
	Bloom []byte

	// Erratum is the correction applied to this item, if any.
	Erratum *errata.Correction
}

// RecordedTimestamp is the consensus timestamp as the record carries it.
// It differs from ConsensusTimestamp only when an erratum shifted the item.
func (r *RecordItem) RecordedTimestamp() int64 {
	if r.Record == nil {
		return r.ConsensusTimestamp
	}
	return r.Record.ConsensusTimestamp
}

// HasParent reports whether the parent was resolved within the file.
func (r *RecordItem) HasParent() bool {
	return r.ParentIndex != NoParent
}

// Parent returns the resolved parent from the owning item sequence.
func (r *RecordItem) Parent(items []*RecordItem) *RecordItem {
	if !r.HasParent() || r.ParentIndex >= len(items) {
		return nil
	}
	return items[r.ParentIndex]
}

// TypeName returns the canonical transaction type name.
func (r *RecordItem) TypeName() string {
	return transaction.TypeName(r.TransactionType)
}
