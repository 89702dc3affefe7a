package transaction

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/withObsrvr/obsrvr-stream-importer/internal/wire"
)

// EntityID identifies an account, contract, file, topic, token or schedule
// as shard.realm.num.
type EntityID struct {
	Shard int64
	Realm int64
	Num   int64
}

// String renders the id as shard.realm.num.
func (e EntityID) String() string {
	return fmt.Sprintf("%d.%d.%d", e.Shard, e.Realm, e.Num)
}

// IsZero reports whether the id is unset.
func (e EntityID) IsZero() bool {
	return e == EntityID{}
}

// TransactionID is the payer-assigned identity of a transaction.
type TransactionID struct {
	ValidStart int64 // nanoseconds since epoch
	Payer      EntityID
	Scheduled  bool
	Nonce      int32
}

const nanosPerSecond = int64(1_000_000_000)

// TimestampFromMessage converts a {seconds, nanos} message into nanoseconds
// since the epoch.
func TimestampFromMessage(m wire.Message) int64 {
	return m.Int64(1)*nanosPerSecond + int64(int32(m.Int64(2)))
}

func decodeEntityID(m wire.Message, num protowire.Number) (EntityID, error) {
	sub, ok, err := m.Message(num)
	if err != nil || !ok {
		return EntityID{}, err
	}
	return EntityID{
		Shard: sub.Int64(1),
		Realm: sub.Int64(2),
		Num:   sub.Int64(3),
	}, nil
}

func decodeTimestamp(m wire.Message, num protowire.Number) (int64, bool, error) {
	sub, ok, err := m.Message(num)
	if err != nil || !ok {
		return 0, false, err
	}
	return TimestampFromMessage(sub), true, nil
}

func decodeTransactionID(m wire.Message, num protowire.Number) (TransactionID, error) {
	sub, ok, err := m.Message(num)
	if err != nil || !ok {
		return TransactionID{}, err
	}

	var id TransactionID
	if id.ValidStart, _, err = decodeTimestamp(sub, 1); err != nil {
		return TransactionID{}, fmt.Errorf("valid start: %w", err)
	}
	if id.Payer, err = decodeEntityID(sub, 2); err != nil {
		return TransactionID{}, fmt.Errorf("payer: %w", err)
	}
	id.Scheduled = sub.Bool(3)
	id.Nonce = int32(sub.Int64(4))
	return id, nil
}
