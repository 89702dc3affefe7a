// Package transaction reconstructs transaction bodies and execution records
// from their protobuf encodings.
package transaction

import (
	"errors"
	"fmt"

	"github.com/withObsrvr/obsrvr-stream-importer/internal/wire"
)

var (
	// ErrMalformedEnvelope is returned when the outer envelope cannot be parsed.
	ErrMalformedEnvelope = errors.New("malformed transaction envelope")

	// ErrMalformedBody is returned when no encoding yields a valid body.
	ErrMalformedBody = errors.New("malformed transaction body")
)

// Transaction envelope fields.
const (
	envelopeBody                   = 1
	envelopeSigMap                 = 3
	envelopeBodyBytes              = 4
	envelopeSignedTransactionBytes = 5

	signedBodyBytes = 1
	signedSigMap    = 2
)

// Transaction body header fields. Everything else in a body is the data
// one-of.
const (
	bodyTransactionID  = 1
	bodyNodeAccountID  = 2
	bodyTransactionFee = 3
	bodyValidDuration  = 4
	bodyGenerateRecord = 5
	bodyMemo           = 6
	bodyMaxCustomFees  = 1001
)

// DecodePath records which of the historical encodings produced a body.
type DecodePath int

const (
	PathSignedTransaction DecodePath = iota + 1
	PathBodyBytes
	PathStructuredBody
)

func (p DecodePath) String() string {
	switch p {
	case PathSignedTransaction:
		return "signed_transaction"
	case PathBodyBytes:
		return "body_bytes"
	case PathStructuredBody:
		return "structured_body"
	default:
		return "unknown"
	}
}

// DecodedBody is the canonical body and signature map of one envelope.
type DecodedBody struct {
	Body          wire.Message
	BodyBytes     []byte
	SignatureMap  []byte
	Path          DecodePath
	TransactionID TransactionID
	NodeAccount   EntityID
	Fee           uint64
	Memo          string
}

// DecodeEnvelope decodes a raw transaction envelope. Encodings are tried
// newest first: signed-transaction bytes, legacy body bytes, then the
// structured body field.
func DecodeEnvelope(raw []byte) (*DecodedBody, error) {
	env, err := wire.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}

	if signed, ok := env.Bytes(envelopeSignedTransactionBytes); ok && len(signed) > 0 {
		return decodeSigned(signed)
	}

	sigMap, _ := env.Bytes(envelopeSigMap)

	if bodyBytes, ok := env.Bytes(envelopeBodyBytes); ok && len(bodyBytes) > 0 {
		body, err := wire.Parse(bodyBytes)
		if err != nil {
			return nil, fmt.Errorf("%w: body bytes: %w", ErrMalformedBody, err)
		}
		// An all-default body is what an empty legacy field parses to; it is
		// never a real transaction, so fall through to the structured body.
		if !body.IsDefault() {
			return newDecodedBody(body, bodyBytes, sigMap, PathBodyBytes)
		}
	}

	if structured, ok := env.Bytes(envelopeBody); ok && len(structured) > 0 {
		body, err := wire.Parse(structured)
		if err != nil {
			return nil, fmt.Errorf("%w: structured body: %w", ErrMalformedBody, err)
		}
		if !body.IsDefault() {
			return newDecodedBody(body, structured, sigMap, PathStructuredBody)
		}
	}

	return nil, fmt.Errorf("%w: envelope carries no body", ErrMalformedBody)
}

func decodeSigned(signedBytes []byte) (*DecodedBody, error) {
	signed, err := wire.Parse(signedBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: signed transaction: %w", ErrMalformedEnvelope, err)
	}

	bodyBytes, _ := signed.Bytes(signedBodyBytes)
	body, err := wire.Parse(bodyBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: signed body: %w", ErrMalformedBody, err)
	}
	if body.IsDefault() {
		return nil, fmt.Errorf("%w: signed transaction has empty body", ErrMalformedBody)
	}

	sigMap, _ := signed.Bytes(signedSigMap)
	return newDecodedBody(body, bodyBytes, sigMap, PathSignedTransaction)
}

func newDecodedBody(body wire.Message, bodyBytes, sigMap []byte, path DecodePath) (*DecodedBody, error) {
	txID, err := decodeTransactionID(body, bodyTransactionID)
	if err != nil {
		return nil, fmt.Errorf("%w: transaction id: %w", ErrMalformedBody, err)
	}
	node, err := decodeEntityID(body, bodyNodeAccountID)
	if err != nil {
		return nil, fmt.Errorf("%w: node account: %w", ErrMalformedBody, err)
	}
	fee, _ := body.Varint(bodyTransactionFee)

	return &DecodedBody{
		Body:          body,
		BodyBytes:     bodyBytes,
		SignatureMap:  sigMap,
		Path:          path,
		TransactionID: txID,
		NodeAccount:   node,
		Fee:           fee,
		Memo:          body.String(bodyMemo),
	}, nil
}
