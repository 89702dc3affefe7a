package recorditem

import (
	"crypto/sha512"
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/Masterminds/semver/v3"

	"github.com/withObsrvr/obsrvr-stream-importer/internal/bloom"
	"github.com/withObsrvr/obsrvr-stream-importer/internal/errata"
	"github.com/withObsrvr/obsrvr-stream-importer/internal/logging"
	"github.com/withObsrvr/obsrvr-stream-importer/internal/transaction"
)

// Input is one raw pair as it appears in a stream file.
type Input struct {
	TransactionBytes []byte
	RecordBytes      []byte
	// HapiVersion overrides Options.HapiVersion for this pair.
	HapiVersion *semver.Version
}

// Options configures a Builder.
type Options struct {
	Network     string
	Errata      *errata.Table
	HapiVersion *semver.Version
	// StrictParents fails an item whose declared parent cannot be linked
	// instead of logging it and building the item without a parent.
	StrictParents bool
	Logger        *slog.Logger
}

// Accumulator is the state threaded through the fold over one file.
type Accumulator struct {
	Items      []*RecordItem
	Bloom      *bloom.Filter
	Unresolved int
	Corrected  int
}

// Builder rebuilds RecordItems. A Builder holds no per-file state and may be
// shared across goroutines; the Accumulator may not.
type Builder struct {
	opts Options
	log  *slog.Logger
}

// NewBuilder creates a builder.
func NewBuilder(opts Options) *Builder {
	if opts.Errata == nil {
		opts.Errata = errata.Empty()
	}
	log := opts.Logger
	if log == nil {
		log = logging.Component("recorditem")
	}
	return &Builder{opts: opts, log: log}
}

// BuildAll folds every input into a fresh accumulator. The first item error
// stops the fold.
func (b *Builder) BuildAll(inputs []Input) (Accumulator, error) {
	acc := Accumulator{
		Items: make([]*RecordItem, 0, len(inputs)),
		Bloom: bloom.New(),
	}
	for _, in := range inputs {
		var err error
		if acc, err = b.Build(acc, in); err != nil {
			return acc, err
		}
	}
	return acc, nil
}

// Build rebuilds the next item of a file and appends it to acc. On failure
// acc is returned unchanged together with an *ItemError.
func (b *Builder) Build(acc Accumulator, in Input) (Accumulator, error) {
	index := len(acc.Items)
	state := StateCollectingTransaction
	fail := func(err error) (Accumulator, error) {
		return acc, &ItemError{Index: index, State: state, Err: err}
	}

	item := &RecordItem{
		Index:            index,
		HapiVersion:      b.opts.HapiVersion,
		TransactionBytes: in.TransactionBytes,
		RecordBytes:      in.RecordBytes,
		ParentIndex:      NoParent,
	}
	if in.HapiVersion != nil {
		item.HapiVersion = in.HapiVersion
	}

	body, err := transaction.DecodeEnvelope(in.TransactionBytes)
	if err != nil {
		return fail(fmt.Errorf("%w: %w", ErrBadTransactionBytes, err))
	}
	item.Body = body

	state = StateCollectingRecord
	rec, err := transaction.DecodeRecord(in.RecordBytes)
	if err != nil {
		return fail(fmt.Errorf("%w: %w", ErrBadRecordBytes, err))
	}
	item.Record = rec

	code, err := transaction.ResolveType(body)
	if err != nil {
		return fail(fmt.Errorf("%w: %w", ErrBadTransactionBytes, err))
	}
	item.TransactionType = code
	item.EntityOperation = transaction.EntityOperationOf(code)
	item.ConsensusTimestamp = rec.ConsensusTimestamp
	item.Successful = rec.Successful()
	item.Payer = body.TransactionID.Payer
	if item.Payer.IsZero() {
		item.Payer = rec.TransactionID.Payer
	}
	item.TransactionHash = rec.TransactionHash
	if len(item.TransactionHash) == 0 {
		sum := sha512.Sum384(in.TransactionBytes)
		item.TransactionHash = sum[:]
	}

	itemBloom, err := logsBloom(rec)
	if err != nil {
		return fail(fmt.Errorf("%w: %w", ErrBadRecordBytes, err))
	}
	item.Bloom = itemBloom.Bytes()

	corrected := b.applyErrata(item)

	state = StateLinking
	unresolved := false
	if parentTS := rec.ParentConsensusTimestamp; parentTS > 0 {
		item.IsChild = true
		item.ParentTimestamp = parentTS
		item.ParentIndex = findParent(acc.Items, parentTS)
		if item.ParentIndex == NoParent {
			if b.opts.StrictParents {
				return fail(fmt.Errorf("%w: parent timestamp %d", ErrUnresolvedParent, parentTS))
			}
			unresolved = true
			b.log.Warn("child transaction parent not found in file",
				"index", index,
				"consensus_timestamp", item.ConsensusTimestamp,
				"parent_timestamp", parentTS,
			)
		}
	}

	// Done: nothing below can fail, so acc only changes for complete items.
	if acc.Bloom == nil {
		acc.Bloom = bloom.New()
	}
	acc.Bloom.Merge(itemBloom)
	acc.Items = append(acc.Items, item)
	if unresolved {
		acc.Unresolved++
	}
	if corrected {
		acc.Corrected++
	}
	return acc, nil
}

// findParent looks at most two hops back: the previous item, then the
// previous item's own parent. Children follow their parent contiguously, so
// a parent that is in this file is always one of the two. A declared parent
// timestamp is the parent's timestamp as recorded, before any erratum.
func findParent(items []*RecordItem, parentTS int64) int {
	if len(items) == 0 {
		return NoParent
	}
	prev := items[len(items)-1]
	if prev.RecordedTimestamp() == parentTS {
		return prev.Index
	}
	if prev.HasParent() && items[prev.ParentIndex].RecordedTimestamp() == parentTS {
		return prev.ParentIndex
	}
	return NoParent
}

func (b *Builder) applyErrata(item *RecordItem) bool {
	c, ok := b.opts.Errata.Lookup(b.opts.Network, item.ConsensusTimestamp)
	if !ok {
		return false
	}

	switch c.Kind {
	case errata.KindTimestampShift:
		item.ConsensusTimestamp += c.OffsetNanos
	case errata.KindStatusOverride:
		item.Record.Receipt.Status = c.Status
		item.Successful = item.Record.Successful()
	}
	item.Erratum = &c

	b.log.Info("applied erratum",
		"kind", c.Kind,
		"consensus_timestamp", item.Record.ConsensusTimestamp,
		"reason", c.Reason,
	)
	return true
}

// logsBloom merges the blooms a contract result reports with one derived
// from each log's address and topics.
func logsBloom(rec *transaction.ExecutionRecord) (*bloom.Filter, error) {
	f := bloom.New()
	result := rec.ContractResult
	if result == nil {
		return f, nil
	}
	if err := f.MergeBytes(result.Bloom); err != nil {
		return nil, fmt.Errorf("contract result: %w", err)
	}
	for i, l := range result.Logs {
		if err := f.MergeBytes(l.Bloom); err != nil {
			return nil, fmt.Errorf("log %d: %w", i, err)
		}
		f.InsertLog(EVMAddress(l.ContractID), l.Topics)
	}
	return f, nil
}

// EVMAddress is the 20-byte long-zero address of an entity:
// 4 bytes shard, 8 bytes realm, 8 bytes num.
func EVMAddress(id transaction.EntityID) []byte {
	out := make([]byte, 0, 20)
	out = binary.BigEndian.AppendUint32(out, uint32(id.Shard))
	out = binary.BigEndian.AppendUint64(out, uint64(id.Realm))
	out = binary.BigEndian.AppendUint64(out, uint64(id.Num))
	return out
}
