package streamfile

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
)

var (
	// ErrCountMismatch is returned when the declared item count differs from
	// the rebuilt sequence.
	ErrCountMismatch = errors.New("item count mismatch")

	// ErrOutOfBounds is returned when consensus or round bounds are inverted
	// or do not cover every item.
	ErrOutOfBounds = errors.New("consensus bounds violated")

	// ErrHashChainBroken is returned when a file does not link to the
	// previously accepted file. It means a missing file or tampering and is
	// never retried.
	ErrHashChainBroken = errors.New("hash chain broken")

	// ErrCorruptFile is returned when content does not match its digest or
	// cannot be decoded as its container format.
	ErrCorruptFile = errors.New("corrupt stream file")

	// ErrInvalidBlockProof is returned when a block file's proof is rejected.
	ErrInvalidBlockProof = errors.New("invalid block proof")
)

// Check names a validation step.
type Check string

const (
	CheckCount      Check = "count"
	CheckBounds     Check = "bounds"
	CheckHashChain  Check = "hash_chain"
	CheckDigest     Check = "digest"
	CheckBlockProof Check = "block_proof"
)

// ValidationError reports the first failed check of a file.
type ValidationError struct {
	File   string
	Check  Check
	Err    error
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s check failed: %v: %s", e.File, e.Check, e.Err, e.Detail)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ProofVerifier decides whether a block file's embedded proof links it to
// its predecessor. previous may be nil for the first block seen.
type ProofVerifier interface {
	VerifyBlockProof(file, previous *StreamFile) bool
}

// ProofVerifierFunc adapts a function to ProofVerifier.
type ProofVerifierFunc func(file, previous *StreamFile) bool

// VerifyBlockProof calls f.
func (f ProofVerifierFunc) VerifyBlockProof(file, previous *StreamFile) bool {
	return f(file, previous)
}

// TrustedProofs accepts every block proof.
var TrustedProofs ProofVerifier = ProofVerifierFunc(func(*StreamFile, *StreamFile) bool { return true })

// Validator checks a file's internal consistency and its link to the
// previously accepted file. It holds no state.
type Validator struct {
	proofs ProofVerifier
}

// NewValidator creates a validator. A nil verifier trusts every proof.
func NewValidator(proofs ProofVerifier) *Validator {
	if proofs == nil {
		proofs = TrustedProofs
	}
	return &Validator{proofs: proofs}
}

// Validate runs, in order: count, bounds, then the hash chain and digest
// checks for record files or the proof check for block files. previous is
// nil when no file has been accepted yet.
func (v *Validator) Validate(file, previous *StreamFile) error {
	fail := func(check Check, err error, format string, args ...any) error {
		return &ValidationError{File: file.Name, Check: check, Err: err, Detail: fmt.Sprintf(format, args...)}
	}

	if file.Count != len(file.Items) {
		return fail(CheckCount, ErrCountMismatch, "declared %d, rebuilt %d", file.Count, len(file.Items))
	}

	if file.ConsensusStart > file.ConsensusEnd {
		return fail(CheckBounds, ErrOutOfBounds, "start %d after end %d", file.ConsensusStart, file.ConsensusEnd)
	}
	for _, item := range file.Items {
		if ts := item.ConsensusTimestamp; ts < file.ConsensusStart || ts > file.ConsensusEnd {
			return fail(CheckBounds, ErrOutOfBounds, "item %d at %d outside [%d, %d]",
				item.Index, ts, file.ConsensusStart, file.ConsensusEnd)
		}
	}
	if previous != nil && previous.ConsensusEnd > 0 && file.Count > 0 && file.ConsensusStart <= previous.ConsensusEnd {
		return fail(CheckBounds, ErrOutOfBounds, "start %d not after previous end %d", file.ConsensusStart, previous.ConsensusEnd)
	}

	if file.Format == FormatBlock {
		if file.RoundStart > file.RoundEnd {
			return fail(CheckBounds, ErrOutOfBounds, "round start %d after round end %d", file.RoundStart, file.RoundEnd)
		}
		if !v.proofs.VerifyBlockProof(file, previous) {
			return fail(CheckBlockProof, ErrInvalidBlockProof, "block %d", file.Index)
		}
		if len(file.ExpectedHash) > 0 {
			if detail := checkDigest(file); detail != "" {
				return fail(CheckDigest, ErrCorruptFile, "%s", detail)
			}
		}
		return nil
	}

	if previous != nil {
		if want := previous.ChainHash(); !bytes.Equal(file.PreviousHash, want) {
			return fail(CheckHashChain, ErrHashChainBroken, "previous hash %s, want %s",
				short(file.PreviousHash), short(want))
		}
	}

	if detail := checkDigest(file); detail != "" {
		return fail(CheckDigest, ErrCorruptFile, "%s", detail)
	}
	return nil
}

// checkDigest digests the content again and compares it with the hash
// recorded at read time and with the published hash, if any. It returns an
// empty string when both match.
func checkDigest(file *StreamFile) string {
	if len(file.Bytes) == 0 {
		return "no content to digest"
	}
	got := file.DigestAlgorithm.Sum(file.Bytes)
	switch {
	case got == nil:
		return fmt.Sprintf("unsupported digest %s", file.DigestAlgorithm)
	case !bytes.Equal(got, file.Hash):
		return fmt.Sprintf("%s digest %s, recorded %s", file.DigestAlgorithm, short(got), short(file.Hash))
	case len(file.ExpectedHash) > 0 && !bytes.Equal(got, file.ExpectedHash):
		return fmt.Sprintf("%s digest %s, published %s", file.DigestAlgorithm, short(got), short(file.ExpectedHash))
	}
	return ""
}

func short(h []byte) string {
	s := hex.EncodeToString(h)
	if len(s) > 16 {
		return s[:16]
	}
	if s == "" {
		return "<empty>"
	}
	return s
}
