package source

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/withObsrvr/obsrvr-stream-importer/internal/streamfile"
)

// ErrBlockGap is returned when block numbers in the index are not
// contiguous.
var ErrBlockGap = errors.New("block gap detected")

// IndexedFile is one stream file known to a source.
type IndexedFile struct {
	Key  string
	Name streamfile.FileName
	Size int64
}

// DigestSuffix marks a sidecar object holding the hex SHA-384 digest of
// the uncompressed stream file it is named after.
const DigestSuffix = ".sha384"

// FileIndex maintains the stream files of one source in file order.
type FileIndex struct {
	format  streamfile.Format
	files   []IndexedFile
	byName  map[string]int
	digests map[string]string // canonical name -> sidecar key
	sorted  bool
}

// NewFileIndex creates an empty index accepting files of format, or of
// either format when format is FormatUnknown.
func NewFileIndex(format streamfile.Format) *FileIndex {
	return &FileIndex{
		format:  format,
		byName:  make(map[string]int),
		digests: make(map[string]string),
		sorted:  true,
	}
}

// AddFile adds a key to the index if its base name follows a stream file
// convention. A name seen twice (e.g. raw and compressed) is kept once.
// Digest sidecars are remembered for their stream file and report false.
func (idx *FileIndex) AddFile(key string, size int64) bool {
	if target, ok := strings.CutSuffix(key, DigestSuffix); ok {
		if name, err := streamfile.ParseFileName(target); err == nil {
			idx.digests[name.Canonical()] = key
		}
		return false
	}

	name, err := streamfile.ParseFileName(key)
	if err != nil {
		return false
	}
	if idx.format != streamfile.FormatUnknown && name.Format != idx.format {
		return false
	}

	canonical := name.Canonical()
	if _, ok := idx.byName[canonical]; ok {
		return false
	}

	idx.files = append(idx.files, IndexedFile{Key: key, Name: name, Size: size})
	idx.byName[canonical] = len(idx.files) - 1
	idx.sorted = false
	return true
}

// Sort orders files by timestamp or block number.
func (idx *FileIndex) Sort() {
	if idx.sorted {
		return
	}
	slices.SortStableFunc(idx.files, func(a, b IndexedFile) int {
		switch {
		case a.Name.Less(b.Name):
			return -1
		case b.Name.Less(a.Name):
			return 1
		default:
			return 0
		}
	})
	for i, f := range idx.files {
		idx.byName[f.Name.Canonical()] = i
	}
	idx.sorted = true
}

// Files returns every indexed file in order.
func (idx *FileIndex) Files() []IndexedFile {
	idx.Sort()
	return slices.Clone(idx.files)
}

// After returns the files ordered strictly after name. A nil name returns
// every file.
func (idx *FileIndex) After(name *streamfile.FileName) []IndexedFile {
	idx.Sort()
	if name == nil {
		return slices.Clone(idx.files)
	}
	result := make([]IndexedFile, 0)
	for _, f := range idx.files {
		if name.Less(f.Name) {
			result = append(result, f)
		}
	}
	return result
}

// GetFile returns a file by its base name with or without the zstd suffix.
func (idx *FileIndex) GetFile(name string) (*IndexedFile, bool) {
	fn, err := streamfile.ParseFileName(name)
	if err != nil {
		return nil, false
	}
	idx.Sort()
	i, ok := idx.byName[fn.Canonical()]
	if !ok {
		return nil, false
	}
	return &idx.files[i], true
}

// DigestKey returns the key of the digest sidecar published for name.
func (idx *FileIndex) DigestKey(name streamfile.FileName) (string, bool) {
	key, ok := idx.digests[name.Canonical()]
	return key, ok
}

// Count returns the total number of indexed files.
func (idx *FileIndex) Count() int {
	return len(idx.files)
}

// ValidateContiguity checks that indexed block files carry consecutive
// block numbers. Record files have no numbering and always pass.
func (idx *FileIndex) ValidateContiguity() error {
	idx.Sort()
	var prev *IndexedFile
	for i := range idx.files {
		f := &idx.files[i]
		if f.Name.Format != streamfile.FormatBlock {
			continue
		}
		if prev != nil && f.Name.BlockNumber != prev.Name.BlockNumber+1 {
			return fmt.Errorf("%w: expected block %d, found %d",
				ErrBlockGap, prev.Name.BlockNumber+1, f.Name.BlockNumber)
		}
		prev = f
	}
	return nil
}
