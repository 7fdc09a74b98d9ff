package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/arkeyez/arkdoc/internal/core/domain"
)

type RecordRepository struct {
	db *sql.DB
}

func NewRecordRepository(db *sql.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *RecordRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082601)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS records (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	content_hash TEXT NOT NULL UNIQUE,
	result JSONB NOT NULL,
	page_count INTEGER NOT NULL,
	uploaded_by TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_records_created_at ON records(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_records_class ON records((result->>'document_class'));
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *RecordRepository) Insert(ctx context.Context, record *domain.DocumentRecord) error {
	resultJSON, err := json.Marshal(record.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO records (id, filename, content_hash, result, page_count, uploaded_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`,
		record.ID, record.Filename, record.ContentHash, resultJSON,
		record.PageCount, record.UploadedBy, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

func (r *RecordRepository) GetByHash(ctx context.Context, contentHash string) (*domain.DocumentRecord, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, filename, content_hash, result, page_count, uploaded_by, created_at
FROM records
WHERE content_hash = $1
`, contentHash)
	return scanRecord(row, contentHash)
}

func (r *RecordRepository) GetByID(ctx context.Context, id string) (*domain.DocumentRecord, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, filename, content_hash, result, page_count, uploaded_by, created_at
FROM records
WHERE id = $1
`, id)
	return scanRecord(row, id)
}

func scanRecord(row *sql.Row, key string) (*domain.DocumentRecord, error) {
	var record domain.DocumentRecord
	var resultRaw []byte

	err := row.Scan(
		&record.ID, &record.Filename, &record.ContentHash, &resultRaw,
		&record.PageCount, &record.UploadedBy, &record.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrRecordNotFound, "get record", errors.New(key))
		}
		return nil, fmt.Errorf("scan record: %w", err)
	}

	if err := json.Unmarshal(resultRaw, &record.Result); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	return &record, nil
}

func (r *RecordRepository) ListRecent(ctx context.Context, limit int) ([]domain.DocumentRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, filename, content_hash, result, page_count, uploaded_by, created_at
FROM records
ORDER BY created_at DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []domain.DocumentRecord
	for rows.Next() {
		var record domain.DocumentRecord
		var resultRaw []byte
		if err := rows.Scan(
			&record.ID, &record.Filename, &record.ContentHash, &resultRaw,
			&record.PageCount, &record.UploadedBy, &record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan record row: %w", err)
		}
		if err := json.Unmarshal(resultRaw, &record.Result); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

// Stats rebuilds the aggregate counters from the table. Used once at
// startup; the hot path maintains them incrementally in memory.
func (r *RecordRepository) Stats(ctx context.Context) (domain.Statistics, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT result->>'document_class', COUNT(*), AVG((result->>'confidence')::double precision)
FROM records
GROUP BY 1
`)
	if err != nil {
		return domain.Statistics{}, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	stats := domain.Statistics{ByClass: map[domain.Class]int{}}
	for _, class := range domain.Classes() {
		stats.ByClass[class] = 0
	}

	var weighted float64
	for rows.Next() {
		var class string
		var count int
		var avg float64
		if err := rows.Scan(&class, &count, &avg); err != nil {
			return domain.Statistics{}, fmt.Errorf("scan stats row: %w", err)
		}
		stats.ByClass[domain.Class(class)] = count
		stats.Total += count
		weighted += float64(count) * avg
	}
	if err := rows.Err(); err != nil {
		return domain.Statistics{}, fmt.Errorf("iterate stats: %w", err)
	}

	if stats.Total > 0 {
		stats.AvgConfidence = weighted / float64(stats.Total)
	}
	return stats, nil
}
