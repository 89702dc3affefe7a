package streamfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/withObsrvr/obsrvr-stream-importer/internal/logging"
	"github.com/withObsrvr/obsrvr-stream-importer/internal/recorditem"
)

// ErrUnsupportedVersion is returned for container versions or digest types
// this reader does not understand.
var ErrUnsupportedVersion = errors.New("unsupported stream file version")

// Reader decodes stream file content and rebuilds its items.
type Reader struct {
	builder *recorditem.Builder
	log     *slog.Logger
}

// NewReader creates a reader that rebuilds items with builder.
func NewReader(builder *recorditem.Builder) *Reader {
	return &Reader{
		builder: builder,
		log:     logging.Component("streamfile"),
	}
}

// Read decodes uncompressed file content. The name selects the format. Any
// item failure fails the whole file.
func (r *Reader) Read(name string, data []byte) (*StreamFile, error) {
	fn, err := ParseFileName(name)
	if err != nil {
		return nil, err
	}

	var file *StreamFile
	switch fn.Format {
	case FormatRecord:
		file, err = r.readRecordFile(fn, data)
	case FormatBlock:
		file, err = r.readBlockFile(fn, data)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn.Name, err)
	}
	return file, nil
}

// build folds the pairs of one file and fills the item-derived fields.
func (r *Reader) build(file *StreamFile, inputs []recorditem.Input) error {
	for i := range inputs {
		inputs[i].HapiVersion = file.HapiVersion
	}
	acc, err := r.builder.BuildAll(inputs)
	if err != nil {
		return err
	}

	file.Count = len(inputs)
	file.Items = acc.Items
	file.LogsBloom = acc.Bloom.Bytes()
	file.Unresolved = acc.Unresolved
	file.Corrected = acc.Corrected
	// Corrected timestamps may leave the items out of order, so the bounds
	// are the extremes rather than the first and last item.
	for i, item := range acc.Items {
		ts := item.ConsensusTimestamp
		if i == 0 || ts < file.ConsensusStart {
			file.ConsensusStart = ts
		}
		if i == 0 || ts > file.ConsensusEnd {
			file.ConsensusEnd = ts
		}
	}
	return nil
}

func (r *Reader) readRecordFile(fn FileName, data []byte) (*StreamFile, error) {
	d := &decoder{buf: data}
	version := d.int32()
	if d.err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptFile, d.err)
	}

	var (
		file   *StreamFile
		inputs []recorditem.Input
		err    error
	)
	switch version {
	case 2:
		file, inputs, err = decodeRecordV2(d)
	case 5:
		file, inputs, err = decodeRecordV5(d)
	default:
		return nil, fmt.Errorf("%w: record file version %d", ErrUnsupportedVersion, version)
	}
	if err != nil {
		return nil, err
	}

	file.Name = fn.Name
	file.Format = FormatRecord
	file.Version = int(version)
	file.Bytes = data
	file.DigestAlgorithm = DigestSHA384
	file.Hash = DigestSHA384.Sum(data)

	if err := r.build(file, inputs); err != nil {
		return nil, err
	}

	if nominal := fn.Timestamp.UnixNano(); file.Count > 0 && nominal != file.ConsensusStart {
		r.log.Debug("record file name differs from first consensus timestamp",
			"file", fn.Name,
			"name_timestamp", fn.Timestamp.Format(time.RFC3339Nano),
			"consensus_start", file.ConsensusStart,
		)
	}
	return file, nil
}

const (
	v2PrevHashMarker = 0x01
	v2RecordMarker   = 0x02

	hashClassID         = 0xf422da83a251741e
	recordStreamClassID = 0xe370929ba5429d8b
)

func decodeRecordV2(d *decoder) (*StreamFile, []recorditem.Input, error) {
	major := d.int32()
	if marker := d.byte(); d.err == nil && marker != v2PrevHashMarker {
		return nil, nil, fmt.Errorf("%w: expected previous hash marker, got 0x%02x", ErrCorruptFile, marker)
	}
	prev := d.bytes(DigestSHA384.Size())
	if d.err != nil {
		return nil, nil, fmt.Errorf("%w: header: %w", ErrCorruptFile, d.err)
	}

	var inputs []recorditem.Input
	for d.remaining() > 0 {
		if marker := d.byte(); marker != v2RecordMarker {
			return nil, nil, fmt.Errorf("%w: expected record marker at offset %d, got 0x%02x",
				ErrCorruptFile, d.off-1, marker)
		}
		tx := d.sized()
		rec := d.sized()
		if d.err != nil {
			return nil, nil, fmt.Errorf("%w: item %d: %w", ErrCorruptFile, len(inputs), d.err)
		}
		inputs = append(inputs, recorditem.Input{TransactionBytes: tx, RecordBytes: rec})
	}

	return &StreamFile{
		HapiVersion:  semver.New(uint64(major), 0, 0, "", ""),
		PreviousHash: prev,
	}, inputs, nil
}

func decodeRecordV5(d *decoder) (*StreamFile, []recorditem.Input, error) {
	major, minor, patch := d.int32(), d.int32(), d.int32()
	d.int32() // object stream version
	if d.err != nil {
		return nil, nil, fmt.Errorf("%w: header: %w", ErrCorruptFile, d.err)
	}

	if classID := d.uint64(); classID != hashClassID {
		return nil, nil, fmt.Errorf("%w: expected start hash object, got class 0x%x", ErrCorruptFile, classID)
	}
	start, err := decodeHashObject(d)
	if err != nil {
		return nil, nil, fmt.Errorf("start hash: %w", err)
	}

	var (
		inputs []recorditem.Input
		end    []byte
	)
	for end == nil {
		classID := d.uint64()
		if d.err != nil {
			return nil, nil, fmt.Errorf("%w: missing end hash: %w", ErrCorruptFile, d.err)
		}
		switch classID {
		case recordStreamClassID:
			d.int32() // class version
			rec := d.sized()
			tx := d.sized()
			if d.err != nil {
				return nil, nil, fmt.Errorf("%w: item %d: %w", ErrCorruptFile, len(inputs), d.err)
			}
			inputs = append(inputs, recorditem.Input{TransactionBytes: tx, RecordBytes: rec})
		case hashClassID:
			if end, err = decodeHashObject(d); err != nil {
				return nil, nil, fmt.Errorf("end hash: %w", err)
			}
		default:
			return nil, nil, fmt.Errorf("%w: unexpected class 0x%x at offset %d", ErrCorruptFile, classID, d.off-8)
		}
	}
	if d.remaining() > 0 {
		return nil, nil, fmt.Errorf("%w: %d trailing bytes after end hash", ErrCorruptFile, d.remaining())
	}

	return &StreamFile{
		HapiVersion:  semver.New(uint64(major), uint64(minor), uint64(patch), "", ""),
		PreviousHash: start,
		RunningHash:  end,
	}, inputs, nil
}

// decodeHashObject reads a hash object after its class id.
func decodeHashObject(d *decoder) ([]byte, error) {
	d.int32() // class version
	digestType := d.int32()
	length := d.int32()
	if d.err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptFile, d.err)
	}
	if digestType != digestTypeSHA384 {
		return nil, fmt.Errorf("%w: digest type 0x%x", ErrUnsupportedVersion, digestType)
	}
	if int(length) != DigestSHA384.Size() {
		return nil, fmt.Errorf("%w: hash length %d", ErrCorruptFile, length)
	}
	h := d.bytes(int(length))
	if d.err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptFile, d.err)
	}
	return h, nil
}

var errTruncated = errors.New("truncated")

// decoder reads big-endian fields and remembers the first error, so a run
// of reads can be checked once.
type decoder struct {
	buf []byte
	off int
	err error
}

func (d *decoder) remaining() int {
	return len(d.buf) - d.off
}

func (d *decoder) bytes(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || n > d.remaining() {
		d.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", errTruncated, n, d.off, d.remaining())
		return nil
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b
}

func (d *decoder) byte() byte {
	b := d.bytes(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (d *decoder) int32() int32 {
	b := d.bytes(4)
	if b == nil {
		return 0
	}
	return int32(binary.BigEndian.Uint32(b))
}

func (d *decoder) uint64() uint64 {
	b := d.bytes(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

// sized reads an int32 length followed by that many bytes.
func (d *decoder) sized() []byte {
	n := d.int32()
	if d.err != nil {
		return nil
	}
	return d.bytes(int(n))
}
