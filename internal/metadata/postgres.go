package metadata

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/withObsrvr/obsrvr-stream-importer/internal/logging"
)

//go:embed schema.sql
var schemaSQL string

// PostgresCatalog implements Catalog using PostgreSQL.
type PostgresCatalog struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// NewPostgresCatalog connects to the catalog database and creates the
// _meta_* tables if they don't exist.
func NewPostgresCatalog(cfg CatalogConfig) (*PostgresCatalog, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("parse DSN: %w", err)
	}

	poolCfg.MaxConns = 5
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	c := &PostgresCatalog{
		pool: pool,
		log:  logging.Component("metadata"),
	}

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	c.log.Info("connected to PostgreSQL catalog")
	return c, nil
}

// RecordStreamFile upserts the file entry and replaces its item rows in one
// transaction.
func (c *PostgresCatalog) RecordStreamFile(ctx context.Context, rec FileRecord) error {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO _meta_stream_files (
			network, name, format, file_index, version, hapi_version,
			hash, previous_hash, chain_hash, consensus_start, consensus_end,
			item_count, successful_count, unresolved_count, corrected_count,
			logs_bloom, storage_path, build_id, producer_version
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (network, name)
		DO UPDATE SET
			file_index = EXCLUDED.file_index,
			hash = EXCLUDED.hash,
			previous_hash = EXCLUDED.previous_hash,
			chain_hash = EXCLUDED.chain_hash,
			item_count = EXCLUDED.item_count,
			successful_count = EXCLUDED.successful_count,
			unresolved_count = EXCLUDED.unresolved_count,
			corrected_count = EXCLUDED.corrected_count,
			logs_bloom = EXCLUDED.logs_bloom,
			storage_path = EXCLUDED.storage_path,
			build_id = EXCLUDED.build_id,
			created_at = NOW()
	`

	_, err = tx.Exec(ctx, query,
		rec.Network,
		rec.Name,
		rec.Format,
		int64(rec.Index),
		rec.Version,
		nullable(rec.HapiVersion),
		rec.Hash,
		rec.PreviousHash,
		rec.ChainHash,
		rec.ConsensusStart,
		rec.ConsensusEnd,
		rec.ItemCount,
		rec.SuccessfulCount,
		rec.UnresolvedCount,
		rec.CorrectedCount,
		rec.LogsBloom,
		nullable(rec.StoragePath),
		nullable(rec.BuildID),
		nullable(rec.ProducerVersion),
	)
	if err != nil {
		return fmt.Errorf("record stream file: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM _meta_record_items WHERE network = $1 AND file_name = $2`,
		rec.Network, rec.Name,
	); err != nil {
		return fmt.Errorf("clear record items: %w", err)
	}

	if len(rec.Items) > 0 {
		rows := make([][]any, len(rec.Items))
		for i, item := range rec.Items {
			var parent *int64
			if item.ParentTimestamp != 0 {
				p := item.ParentTimestamp
				parent = &p
			}
			rows[i] = []any{
				rec.Network, rec.Name, item.Index, item.ConsensusTimestamp,
				item.TransactionType, item.Payer, item.Successful, parent,
			}
		}
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"_meta_record_items"},
			[]string{
				"network", "file_name", "item_index", "consensus_timestamp",
				"transaction_type", "payer", "successful", "parent_timestamp",
			},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("copy record items: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	c.log.Debug("recorded stream file", "network", rec.Network, "file", rec.Name, "items", len(rec.Items))
	return nil
}

// LastStreamFile returns the most recent accepted file for hash chaining.
func (c *PostgresCatalog) LastStreamFile(ctx context.Context, network, format string) (*FileRecord, error) {
	query := `
		SELECT name, format, file_index, version, COALESCE(hapi_version, ''),
		       hash, previous_hash, chain_hash, consensus_start, consensus_end,
		       item_count, successful_count, unresolved_count, corrected_count,
		       logs_bloom, COALESCE(storage_path, ''), COALESCE(build_id, ''),
		       COALESCE(producer_version, ''), created_at
		FROM _meta_stream_files
		WHERE network = $1 AND ($2 = '' OR format = $2)
		ORDER BY file_index DESC
		LIMIT 1
	`

	rec := FileRecord{Network: network}
	var index int64
	err := c.pool.QueryRow(ctx, query, network, format).Scan(
		&rec.Name, &rec.Format, &index, &rec.Version, &rec.HapiVersion,
		&rec.Hash, &rec.PreviousHash, &rec.ChainHash, &rec.ConsensusStart, &rec.ConsensusEnd,
		&rec.ItemCount, &rec.SuccessfulCount, &rec.UnresolvedCount, &rec.CorrectedCount,
		&rec.LogsBloom, &rec.StoragePath, &rec.BuildID,
		&rec.ProducerVersion, &rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get last stream file: %w", err)
	}
	rec.Index = uint64(index)
	return &rec, nil
}

// Exists checks if a file has already been accepted.
func (c *PostgresCatalog) Exists(ctx context.Context, network, name string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM _meta_stream_files WHERE network = $1 AND name = $2)`

	var exists bool
	if err := c.pool.QueryRow(ctx, query, network, name).Scan(&exists); err != nil {
		return false, fmt.Errorf("check stream file exists: %w", err)
	}
	return exists, nil
}

// Close releases database connections.
func (c *PostgresCatalog) Close() error {
	c.pool.Close()
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
