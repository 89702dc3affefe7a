package streamfile

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/withObsrvr/obsrvr-stream-importer/internal/recorditem"
	"github.com/withObsrvr/obsrvr-stream-importer/internal/transaction"
	"github.com/withObsrvr/obsrvr-stream-importer/internal/wire"
)

// Block item kinds, by field number in the BlockItem one-of.
const (
	blockItems = 1

	itemBlockHeader       protowire.Number = 1
	itemRoundHeader       protowire.Number = 3
	itemEventTransaction  protowire.Number = 4
	itemTransactionResult protowire.Number = 5
	itemBlockProof        protowire.Number = 9
)

// blockVersion is recorded as StreamFile.Version for block files.
const blockVersion = 7

func (r *Reader) readBlockFile(fn FileName, data []byte) (*StreamFile, error) {
	block, err := wire.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%w: block: %w", ErrCorruptFile, err)
	}

	file := &StreamFile{
		Name:            fn.Name,
		Format:          FormatBlock,
		Version:         blockVersion,
		Bytes:           data,
		DigestAlgorithm: DigestSHA384,
		Hash:            DigestSHA384.Sum(data),
	}

	var (
		inputs      []recorditem.Input
		pending     []byte
		havePending bool
		headerSeen  bool
		firstConsTS int64
		roundsSeen  bool
	)
	for i, f := range block.All(blockItems) {
		item, err := wire.Parse(f.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: block item %d: %w", ErrCorruptFile, i, err)
		}

		switch {
		case item.Has(itemBlockHeader):
			header, _, err := item.Message(itemBlockHeader)
			if err != nil {
				return nil, fmt.Errorf("%w: block header: %w", ErrCorruptFile, err)
			}
			if err := decodeBlockHeader(file, header, &firstConsTS); err != nil {
				return nil, err
			}
			headerSeen = true

		case item.Has(itemRoundHeader):
			round, _, err := item.Message(itemRoundHeader)
			if err != nil {
				return nil, fmt.Errorf("%w: round header: %w", ErrCorruptFile, err)
			}
			n, _ := round.Varint(1)
			if !roundsSeen {
				file.RoundStart = n
				roundsSeen = true
			}
			file.RoundEnd = n

		case item.Has(itemEventTransaction):
			event, _, err := item.Message(itemEventTransaction)
			if err != nil {
				return nil, fmt.Errorf("%w: event transaction: %w", ErrCorruptFile, err)
			}
			if havePending {
				return nil, fmt.Errorf("%w: transaction %d has no result", ErrCorruptFile, len(inputs))
			}
			pending, _ = event.Bytes(1)
			havePending = true

		case item.Has(itemTransactionResult):
			if !havePending {
				return nil, fmt.Errorf("%w: result without transaction at item %d", ErrCorruptFile, i)
			}
			rec, _ := item.Bytes(itemTransactionResult)
			inputs = append(inputs, recorditem.Input{TransactionBytes: pending, RecordBytes: rec})
			pending, havePending = nil, false

		case item.Has(itemBlockProof):
			file.BlockProof, _ = item.Bytes(itemBlockProof)
		}
	}

	if !headerSeen {
		return nil, fmt.Errorf("%w: missing block header", ErrCorruptFile)
	}
	if havePending {
		return nil, fmt.Errorf("%w: transaction %d has no result", ErrCorruptFile, len(inputs))
	}
	if file.Index != fn.BlockNumber {
		return nil, fmt.Errorf("%w: header block number %d does not match file name", ErrCorruptFile, file.Index)
	}

	if err := r.build(file, inputs); err != nil {
		return nil, err
	}
	switch {
	case firstConsTS == 0:
	case len(file.Items) == 0:
		file.ConsensusStart, file.ConsensusEnd = firstConsTS, firstConsTS
	case firstConsTS < file.ConsensusStart:
		file.ConsensusStart = firstConsTS
	}
	return file, nil
}

func decodeBlockHeader(file *StreamFile, header wire.Message, firstConsTS *int64) error {
	if hapi, ok, err := header.Message(1); err != nil {
		return fmt.Errorf("%w: hapi version: %w", ErrCorruptFile, err)
	} else if ok {
		major, _ := hapi.Varint(1)
		minor, _ := hapi.Varint(2)
		patch, _ := hapi.Varint(3)
		file.HapiVersion = semver.New(major, minor, patch, "", "")
	}

	file.Index, _ = header.Varint(3)

	if ts, ok, err := header.Message(4); err != nil {
		return fmt.Errorf("%w: first transaction time: %w", ErrCorruptFile, err)
	} else if ok {
		*firstConsTS = transaction.TimestampFromMessage(ts)
	}

	file.PreviousHash, _ = header.Bytes(5)

	// 0 and 1 both denote SHA-384 across block stream revisions.
	if algo, _ := header.Varint(6); algo > 1 {
		return fmt.Errorf("%w: block hash algorithm %d", ErrUnsupportedVersion, algo)
	}
	return nil
}
