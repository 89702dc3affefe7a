package importer

import (
	"errors"
	"time"

	"github.com/withObsrvr/obsrvr-stream-importer/internal/source"
	"github.com/withObsrvr/obsrvr-stream-importer/internal/streamfile"
)

// Set at build time via -ldflags.
var (
	Version = "dev"
	GitSHA  = ""
)

// ErrSequenceGap is returned when the pipeline drains with files still
// waiting for a predecessor that never arrived.
var ErrSequenceGap = errors.New("stream file sequence gap")

// FileTask is one raw file handed to a worker. Seq is the position of the
// file in this run and orders the sequencer.
type FileTask struct {
	Seq  int64
	Raw  source.RawFile
	Sent time.Time
}

// FileResult is the outcome of building one file.
type FileResult struct {
	Task  FileTask
	Built *BuiltFile
	Err   error
}

// BuiltFile is a decoded stream file waiting for in-order validation.
type BuiltFile struct {
	File     *streamfile.StreamFile
	BuildID  string
	BuiltAt  time.Time
	Duration time.Duration
}

// CommitResult describes one accepted file.
type CommitResult struct {
	Name       string
	Index      uint64
	Items      int
	Skipped    bool
	StorageURI string
}
