package tables

import (
	"time"
)

// TransactionRow represents a single row in the transactions table, one
// per rebuilt record item.
type TransactionRow struct {
	// Primary identifier
	ConsensusTimestamp int64 `parquet:"consensus_timestamp"`

	// Stream file lineage
	Network   string `parquet:"network"`
	FileName  string `parquet:"file_name"`
	FileIndex int64  `parquet:"file_index"`
	ItemIndex int32  `parquet:"item_index"`

	// Transaction identity
	TransactionType int32  `parquet:"transaction_type"`
	TypeName        string `parquet:"type_name"`
	EntityOperation string `parquet:"entity_operation"`
	Payer           string `parquet:"payer"`
	ValidStart      int64  `parquet:"valid_start"`
	NodeAccount     string `parquet:"node_account"`
	TransactionHash string `parquet:"transaction_hash"` // hex-encoded
	Memo            string `parquet:"memo"`

	// Outcome
	Status     int32  `parquet:"status"`
	Successful bool   `parquet:"successful"`
	Fee        int64  `parquet:"fee"`
	GasUsed    int64  `parquet:"gas_used"`
	LogsBloom  []byte `parquet:"logs_bloom"`

	// Parent linkage
	IsChild         bool  `parquet:"is_child"`
	ParentTimestamp int64 `parquet:"parent_timestamp"`
	ParentIndex     int32 `parquet:"parent_index"` // -1 when unresolved

	// Provenance
	HapiVersion string `parquet:"hapi_version"`
	Erratum     string `parquet:"erratum"` // errata label, empty when uncorrected

	// Raw data preservation
	TransactionBytes []byte `parquet:"transaction_bytes"`
	RecordBytes      []byte `parquet:"record_bytes"`

	// Ingestion metadata
	IngestedAt time.Time `parquet:"ingested_at,timestamp(millisecond)"`
}

// TableName returns the canonical table name.
func (TransactionRow) TableName() string {
	return "transactions"
}

// ParquetConfig configures parquet output generation.
type ParquetConfig struct {
	Network     string // "mainnet"
	Compression string // "snappy" | "zstd" | "none"
}

// DefaultParquetConfig returns sensible defaults.
func DefaultParquetConfig() ParquetConfig {
	return ParquetConfig{
		Network:     "mainnet",
		Compression: "zstd",
	}
}

// SchemaVersion returns the version of the schema.
// Increment this when making breaking changes.
const SchemaVersion = "1.0.0"
