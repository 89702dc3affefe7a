package transaction

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/withObsrvr/obsrvr-stream-importer/internal/wire"
)

// ErrAmbiguousType is returned when a body has no recognized operation and
// does not carry exactly one unrecognized field to stand in for it.
var ErrAmbiguousType = errors.New("ambiguous transaction type")

var headerFields = map[protowire.Number]bool{
	bodyTransactionID:  true,
	bodyNodeAccountID:  true,
	bodyTransactionFee: true,
	bodyValidDuration:  true,
	bodyGenerateRecord: true,
	bodyMemo:           true,
	bodyMaxCustomFees:  true,
}

// ResolveType returns the type code of a decoded body.
//
// A recognized data case wins. Otherwise the body must carry exactly one
// field number this build does not know; that number is the type code of an
// operation introduced by a newer protocol version.
func ResolveType(body *DecodedBody) (int32, error) {
	if body == nil {
		return TypeUnknown, fmt.Errorf("%w: nil body", ErrAmbiguousType)
	}

	code := TypeUnknown
	var unknown []protowire.Number
	for _, num := range body.Body.Numbers() {
		switch {
		case headerFields[num]:
		case IsKnownType(int32(num)):
			code = int32(num)
		default:
			unknown = append(unknown, num)
		}
	}

	if code != TypeUnknown {
		return code, nil
	}
	if len(unknown) != 1 {
		return TypeUnknown, fmt.Errorf("%w: %d unrecognized fields %v", ErrAmbiguousType, len(unknown), unknown)
	}
	return int32(unknown[0]), nil
}

// DataPayload returns the raw bytes of the operation payload for a type code.
func DataPayload(body wire.Message, code int32) ([]byte, bool) {
	return body.Bytes(protowire.Number(code))
}
