package transaction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/withObsrvr/obsrvr-stream-importer/internal/testutil"
)

func TestDecodeEnvelopePaths(t *testing.T) {
	body := testutil.CryptoTransfer(1001, 1_600_000_000_000_000_000)

	tests := []struct {
		name     string
		envelope []byte
		want     DecodePath
	}{
		{"signed transaction", testutil.SignedEnvelope(body), PathSignedTransaction},
		{"legacy body bytes", testutil.BodyBytesEnvelope(body), PathBodyBytes},
		{"structured body", testutil.StructuredEnvelope(body), PathStructuredBody},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded, err := DecodeEnvelope(tt.envelope)
			require.NoError(t, err)
			assert.Equal(t, tt.want, decoded.Path)
			assert.Equal(t, body, decoded.BodyBytes)
			assert.Equal(t, EntityID{Num: 1001}, decoded.TransactionID.Payer)
			assert.Equal(t, int64(1_600_000_000_000_000_000), decoded.TransactionID.ValidStart)
			assert.Equal(t, EntityID{Num: 3}, decoded.NodeAccount)
			assert.Equal(t, uint64(100_000), decoded.Fee)
		})
	}
}

func TestDecodeEnvelopePrefersSignedTransaction(t *testing.T) {
	signedBody := testutil.Body{Payer: 1001, Memo: "signed", Data: map[protowire.Number][]byte{14: {0x0a, 0x00}}}.Encode()
	legacyBody := testutil.Body{Payer: 2002, Memo: "legacy", Data: map[protowire.Number][]byte{27: {0x0a, 0x00}}}.Encode()

	signed := testutil.NewEncoder().Bytes(1, signedBody).Build()
	envelope := testutil.NewEncoder().
		Bytes(4, legacyBody).
		Bytes(5, signed).
		Build()

	decoded, err := DecodeEnvelope(envelope)
	require.NoError(t, err)
	assert.Equal(t, PathSignedTransaction, decoded.Path)
	assert.Equal(t, "signed", decoded.Memo)
	assert.Equal(t, int64(1001), decoded.TransactionID.Payer.Num)

	code, err := ResolveType(decoded)
	require.NoError(t, err)
	assert.Equal(t, TypeCryptoTransfer, code)
}

func TestDecodeEnvelopeDefaultLegacyBodyFallsThrough(t *testing.T) {
	body := testutil.CryptoTransfer(1001, 5)

	// A legacy field holding only default values parses to an empty body.
	defaultBody := testutil.NewEncoder().Varint(3, 0).Build()
	envelope := testutil.NewEncoder().
		Bytes(1, body).
		Bytes(4, defaultBody).
		Build()

	decoded, err := DecodeEnvelope(envelope)
	require.NoError(t, err)
	assert.Equal(t, PathStructuredBody, decoded.Path)
}

func TestDecodeEnvelopeErrors(t *testing.T) {
	tests := []struct {
		name     string
		envelope []byte
		want     error
	}{
		{
			name:     "truncated envelope",
			envelope: []byte{0x2a, 0x10, 0x01},
			want:     ErrMalformedEnvelope,
		},
		{
			name:     "empty envelope",
			envelope: nil,
			want:     ErrMalformedBody,
		},
		{
			name:     "signed transaction with garbage body",
			envelope: testutil.NewEncoder().Bytes(5, testutil.NewEncoder().Bytes(1, []byte{0xff}).Build()).Build(),
			want:     ErrMalformedBody,
		},
		{
			name:     "signed transaction with empty body",
			envelope: testutil.NewEncoder().Bytes(5, testutil.NewEncoder().Bytes(2, []byte{0x01}).Build()).Build(),
			want:     ErrMalformedBody,
		},
		{
			name:     "legacy body bytes garbage",
			envelope: testutil.NewEncoder().Bytes(4, []byte{0x0a, 0x09}).Build(),
			want:     ErrMalformedBody,
		},
		{
			name:     "only signature map",
			envelope: testutil.NewEncoder().Bytes(3, []byte{0x0a, 0x00}).Build(),
			want:     ErrMalformedBody,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeEnvelope(tt.envelope)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDecodeEnvelopeSignedFailsFast(t *testing.T) {
	// A broken signed transaction must not fall back to a valid legacy body.
	envelope := testutil.NewEncoder().
		Bytes(4, testutil.CryptoTransfer(1001, 5)).
		Bytes(5, []byte{0x0a, 0x7f}).
		Build()

	_, err := DecodeEnvelope(envelope)
	assert.ErrorIs(t, err, ErrMalformedEnvelope)
}
