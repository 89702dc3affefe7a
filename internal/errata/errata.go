// Package errata holds manually curated corrections for historically
// defective records, keyed by network and consensus timestamp.
package errata

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// ErrOverlappingEntries is returned when two entries for the same network
// cover a common timestamp.
var ErrOverlappingEntries = errors.New("errata entries overlap")

// ErrInvalidEntry is returned for an entry that cannot be applied.
var ErrInvalidEntry = errors.New("invalid errata entry")

//go:embed errata.yaml
var defaultDocument []byte

// Kind names the correction an entry applies.
type Kind string

const (
	// KindTimestampShift moves the consensus timestamp by OffsetNanos.
	KindTimestampShift Kind = "timestamp_shift"
	// KindStatusOverride replaces the receipt status.
	KindStatusOverride Kind = "status_override"
	// KindFlag only labels the item for downstream consumers.
	KindFlag Kind = "flag"
)

// Entry is one row of the errata document.
type Entry struct {
	Network     string `yaml:"network"`
	Timestamp   int64  `yaml:"timestamp"`
	Start       int64  `yaml:"start"`
	End         int64  `yaml:"end"`
	Kind        Kind   `yaml:"kind"`
	OffsetNanos int64  `yaml:"offset_nanos"`
	Status      int32  `yaml:"status"`
	Label       string `yaml:"label"`
	Reason      string `yaml:"reason"`
}

// Contains returns true if ts is covered by the entry.
func (e Entry) Contains(ts int64) bool {
	return ts >= e.Start && ts <= e.End
}

// normalize folds the exact-timestamp form into a single-point range.
func (e Entry) normalize() (Entry, error) {
	if e.Network == "" {
		return e, fmt.Errorf("%w: missing network", ErrInvalidEntry)
	}
	if e.Timestamp != 0 {
		if e.Start != 0 || e.End != 0 {
			return e, fmt.Errorf("%w: %s: timestamp and range are exclusive", ErrInvalidEntry, e.Network)
		}
		e.Start, e.End = e.Timestamp, e.Timestamp
	}
	if e.Start <= 0 || e.End < e.Start {
		return e, fmt.Errorf("%w: %s: bad range [%d, %d]", ErrInvalidEntry, e.Network, e.Start, e.End)
	}

	switch e.Kind {
	case KindTimestampShift:
		if e.OffsetNanos == 0 {
			return e, fmt.Errorf("%w: %s@%d: zero timestamp shift", ErrInvalidEntry, e.Network, e.Start)
		}
	case KindStatusOverride:
		if e.Status == 0 {
			return e, fmt.Errorf("%w: %s@%d: missing status", ErrInvalidEntry, e.Network, e.Start)
		}
	case KindFlag:
	default:
		return e, fmt.Errorf("%w: %s@%d: unknown kind %q", ErrInvalidEntry, e.Network, e.Start, e.Kind)
	}
	return e, nil
}

// Correction is what a lookup hands back to the record builder.
type Correction struct {
	Kind        Kind
	OffsetNanos int64
	Status      int32
	Label       string
	Reason      string
}

type document struct {
	Version int     `yaml:"version"`
	Entries []Entry `yaml:"entries"`
}

// Table is an immutable errata lookup. It is safe for concurrent reads.
type Table struct {
	version   int
	byNetwork map[string][]Entry
}

// Empty returns a table with no entries.
func Empty() *Table {
	return &Table{byNetwork: map[string][]Entry{}}
}

// Default returns the table compiled into the binary.
func Default() (*Table, error) {
	return Parse(defaultDocument)
}

// LoadFile reads an errata document from disk.
func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open errata: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads an errata document.
func Load(r io.Reader) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read errata: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML errata document. Entries are sorted by start per
// network and must not overlap.
func Parse(data []byte) (*Table, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse errata: %w", err)
	}

	t := &Table{version: doc.Version, byNetwork: map[string][]Entry{}}
	for _, raw := range doc.Entries {
		e, err := raw.normalize()
		if err != nil {
			return nil, err
		}
		t.byNetwork[e.Network] = append(t.byNetwork[e.Network], e)
	}

	for network, entries := range t.byNetwork {
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].Start < entries[j].Start
		})
		for i := 0; i < len(entries)-1; i++ {
			if entries[i].End >= entries[i+1].Start {
				return nil, fmt.Errorf("%w: %s: [%d, %d] and [%d, %d]", ErrOverlappingEntries,
					network, entries[i].Start, entries[i].End, entries[i+1].Start, entries[i+1].End)
			}
		}
	}
	return t, nil
}

// Lookup returns the correction covering ts on network, if any.
func (t *Table) Lookup(network string, ts int64) (Correction, bool) {
	if t == nil {
		return Correction{}, false
	}
	entries := t.byNetwork[network]
	// First entry that ends at or after ts; entries do not overlap.
	i := sort.Search(len(entries), func(i int) bool {
		return entries[i].End >= ts
	})
	if i == len(entries) || !entries[i].Contains(ts) {
		return Correction{}, false
	}

	e := entries[i]
	return Correction{
		Kind:        e.Kind,
		OffsetNanos: e.OffsetNanos,
		Status:      e.Status,
		Label:       e.Label,
		Reason:      e.Reason,
	}, true
}

// Version returns the document version.
func (t *Table) Version() int {
	return t.version
}

// Len returns the number of entries across all networks.
func (t *Table) Len() int {
	n := 0
	for _, entries := range t.byNetwork {
		n += len(entries)
	}
	return n
}
