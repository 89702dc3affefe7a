package tables

import (
	"encoding/hex"
	"time"

	"github.com/withObsrvr/obsrvr-stream-importer/internal/recorditem"
	"github.com/withObsrvr/obsrvr-stream-importer/internal/streamfile"
)

// Extractor converts rebuilt stream files into table rows.
type Extractor struct {
	cfg ParquetConfig
}

// NewExtractor creates a new row extractor.
func NewExtractor(cfg ParquetConfig) *Extractor {
	return &Extractor{cfg: cfg}
}

// ExtractTransactions returns one row per item of f, in file order.
func (e *Extractor) ExtractTransactions(f *streamfile.StreamFile, ingestedAt time.Time) []TransactionRow {
	rows := make([]TransactionRow, len(f.Items))
	for i, item := range f.Items {
		rows[i] = e.extractItem(f, item, ingestedAt)
	}
	return rows
}

func (e *Extractor) extractItem(f *streamfile.StreamFile, item *recorditem.RecordItem, ingestedAt time.Time) TransactionRow {
	row := TransactionRow{
		ConsensusTimestamp: item.ConsensusTimestamp,
		Network:            e.cfg.Network,
		FileName:           f.Name,
		FileIndex:          int64(f.Index),
		ItemIndex:          int32(item.Index),
		TransactionType:    item.TransactionType,
		TypeName:           item.TypeName(),
		EntityOperation:    item.EntityOperation.String(),
		Payer:              item.Payer.String(),
		TransactionHash:    hex.EncodeToString(item.TransactionHash),
		Successful:         item.Successful,
		LogsBloom:          item.Bloom,
		IsChild:            item.IsChild,
		ParentTimestamp:    item.ParentTimestamp,
		ParentIndex:        int32(item.ParentIndex),
		TransactionBytes:   item.TransactionBytes,
		RecordBytes:        item.RecordBytes,
		IngestedAt:         ingestedAt,
	}

	if item.HapiVersion != nil {
		row.HapiVersion = item.HapiVersion.String()
	}
	if item.Erratum != nil {
		row.Erratum = item.Erratum.Label
	}
	if body := item.Body; body != nil {
		row.ValidStart = body.TransactionID.ValidStart
		row.NodeAccount = body.NodeAccount.String()
		row.Memo = body.Memo
	}
	if rec := item.Record; rec != nil {
		row.Status = rec.Receipt.Status
		row.Fee = int64(rec.Fee)
		if rec.ContractResult != nil {
			row.GasUsed = int64(rec.ContractResult.GasUsed)
		}
	}
	return row
}
