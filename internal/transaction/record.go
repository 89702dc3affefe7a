package transaction

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/withObsrvr/obsrvr-stream-importer/internal/wire"
)

// ErrMalformedRecord is returned when an execution record cannot be decoded.
var ErrMalformedRecord = errors.New("malformed transaction record")

// Response codes that count as a successful execution.
const (
	StatusSuccess                            int32 = 22
	StatusFeeScheduleFilePartUploaded        int32 = 104
	StatusSuccessButMissingExpectedOperation int32 = 220
)

// Execution record fields.
const (
	recordReceipt              = 1
	recordTransactionHash      = 2
	recordConsensusTimestamp   = 3
	recordTransactionID        = 4
	recordMemo                 = 5
	recordTransactionFee       = 6
	recordContractCallResult   = 7
	recordContractCreateResult = 8
	recordParentConsensus      = 15
	recordEthereumHash         = 17
)

// Receipt holds the status and entity ids reported for a transaction.
type Receipt struct {
	Status     int32
	AccountID  EntityID
	FileID     EntityID
	ContractID EntityID
	TopicID    EntityID
	TokenID    EntityID
	ScheduleID EntityID
}

// ContractLog is one log emitted by a contract execution.
type ContractLog struct {
	ContractID EntityID
	Bloom      []byte
	Topics     [][]byte
	Data       []byte
}

// ContractResult is the outcome of a contract call or create.
type ContractResult struct {
	Create     bool
	ContractID EntityID
	Bloom      []byte
	GasUsed    uint64
	Logs       []ContractLog
}

// ExecutionRecord is the decoded result envelope of one transaction.
type ExecutionRecord struct {
	Receipt                  Receipt
	TransactionHash          []byte
	ConsensusTimestamp       int64
	ParentConsensusTimestamp int64 // zero when the record declares no parent
	TransactionID            TransactionID
	Memo                     string
	Fee                      uint64
	ContractResult           *ContractResult
	EthereumHash             []byte
}

// Successful reports whether the receipt status is a success code.
func (r *ExecutionRecord) Successful() bool {
	switch r.Receipt.Status {
	case StatusSuccess, StatusFeeScheduleFilePartUploaded, StatusSuccessButMissingExpectedOperation:
		return true
	default:
		return false
	}
}

// DecodeRecord decodes an execution record. Records have a single encoding,
// so there is no fallback chain.
func DecodeRecord(raw []byte) (*ExecutionRecord, error) {
	m, err := wire.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedRecord, err)
	}

	consensus, ok, err := decodeTimestamp(m, recordConsensusTimestamp)
	if err != nil {
		return nil, fmt.Errorf("%w: consensus timestamp: %w", ErrMalformedRecord, err)
	}
	if !ok || consensus <= 0 {
		return nil, fmt.Errorf("%w: missing consensus timestamp", ErrMalformedRecord)
	}

	rec := &ExecutionRecord{
		ConsensusTimestamp: consensus,
		Memo:               m.String(recordMemo),
	}
	rec.TransactionHash, _ = m.Bytes(recordTransactionHash)
	rec.EthereumHash, _ = m.Bytes(recordEthereumHash)
	rec.Fee, _ = m.Varint(recordTransactionFee)

	if rec.Receipt, err = decodeReceipt(m); err != nil {
		return nil, fmt.Errorf("%w: receipt: %w", ErrMalformedRecord, err)
	}
	if rec.TransactionID, err = decodeTransactionID(m, recordTransactionID); err != nil {
		return nil, fmt.Errorf("%w: transaction id: %w", ErrMalformedRecord, err)
	}
	if rec.ParentConsensusTimestamp, _, err = decodeTimestamp(m, recordParentConsensus); err != nil {
		return nil, fmt.Errorf("%w: parent timestamp: %w", ErrMalformedRecord, err)
	}

	for _, num := range []protowire.Number{recordContractCallResult, recordContractCreateResult} {
		sub, ok, err := m.Message(num)
		if err != nil {
			return nil, fmt.Errorf("%w: contract result: %w", ErrMalformedRecord, err)
		}
		if !ok {
			continue
		}
		result, err := decodeContractResult(sub)
		if err != nil {
			return nil, fmt.Errorf("%w: contract result: %w", ErrMalformedRecord, err)
		}
		result.Create = num == recordContractCreateResult
		rec.ContractResult = result
	}

	return rec, nil
}

func decodeReceipt(m wire.Message) (Receipt, error) {
	sub, ok, err := m.Message(recordReceipt)
	if err != nil || !ok {
		return Receipt{}, err
	}

	r := Receipt{Status: int32(sub.Int64(1))}
	ids := []struct {
		num protowire.Number
		dst *EntityID
	}{
		{2, &r.AccountID},
		{3, &r.FileID},
		{4, &r.ContractID},
		{6, &r.TopicID},
		{10, &r.TokenID},
		{13, &r.ScheduleID},
	}
	for _, id := range ids {
		if *id.dst, err = decodeEntityID(sub, id.num); err != nil {
			return Receipt{}, err
		}
	}
	return r, nil
}

func decodeContractResult(m wire.Message) (*ContractResult, error) {
	contractID, err := decodeEntityID(m, 1)
	if err != nil {
		return nil, err
	}
	result := &ContractResult{ContractID: contractID}
	result.Bloom, _ = m.Bytes(4)
	result.GasUsed, _ = m.Varint(5)

	for _, f := range m.All(6) {
		logMsg, err := wire.Parse(f.Bytes)
		if err != nil {
			return nil, fmt.Errorf("log: %w", err)
		}
		id, err := decodeEntityID(logMsg, 1)
		if err != nil {
			return nil, fmt.Errorf("log contract: %w", err)
		}
		log := ContractLog{ContractID: id}
		log.Bloom, _ = logMsg.Bytes(2)
		log.Data, _ = logMsg.Bytes(4)
		for _, topic := range logMsg.All(3) {
			log.Topics = append(log.Topics, topic.Bytes)
		}
		result.Logs = append(result.Logs, log)
	}
	return result, nil
}
