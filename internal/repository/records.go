package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-trust/internal/pipeline"
)

const tableRecords = "extraction_records"

// StoredRecord is one persisted extraction record.
type StoredRecord struct {
	ID              string          `json:"id"`
	DocumentID      string          `json:"document_id"`
	Strategy        string          `json:"strategy"`
	OverallTrust    float64         `json:"overall_trust"`
	CrossValidation *float64        `json:"cross_validation,omitempty"`
	Trusted         bool            `json:"trusted"`
	Record          json.RawMessage `json:"record"`
	CreatedAt       time.Time       `json:"created_at"`
}

// RecordRepository persists extraction records.
type RecordRepository interface {
	Save(ctx context.Context, rec *pipeline.Record) (string, error)
	Count(ctx context.Context) (int, error)
	Recent(ctx context.Context, limit int) ([]StoredRecord, error)
}

var _ RecordRepository = (*DB)(nil)

func (d *DB) builder() *entsql.DialectBuilder { return entsql.Dialect(d.dialect) }

func (d *DB) floatType() string {
	if d.dialect == dialect.Postgres {
		return "DOUBLE PRECISION"
	}
	return "REAL"
}

func (d *DB) timeType() string {
	if d.dialect == dialect.Postgres {
		return "TIMESTAMPTZ"
	}
	return "DATETIME"
}

// Migrate creates the records table when missing.
func (d *DB) Migrate(ctx context.Context) error {
	b := d.builder()
	q, args := b.CreateTable(tableRecords).IfNotExists().
		Columns(
			b.Column("id").Type("VARCHAR(36)").Attr("NOT NULL"),
			b.Column("document_id").Type("TEXT").Attr("NOT NULL"),
			b.Column("strategy").Type("TEXT").Attr("NOT NULL"),
			b.Column("overall_trust").Type(d.floatType()).Attr("NOT NULL"),
			b.Column("cross_validation").Type(d.floatType()),
			b.Column("trusted").Type("BOOLEAN").Attr("NOT NULL"),
			b.Column("record_json").Type("TEXT").Attr("NOT NULL"),
			b.Column("created_at").Type(d.timeType()).Attr("NOT NULL"),
		).
		PrimaryKey("id").
		Query()
	if _, err := d.drv.DB().ExecContext(ctx, q, args...); err != nil {
		d.logger.Error("repository.migrate.failed", "error", err)
		return fmt.Errorf("create %s: %w", tableRecords, err)
	}
	d.logger.Info("repository.migrate.ok", "table", tableRecords, "dialect", d.dialect)
	return nil
}

// Save inserts rec and returns the new row id.
func (d *DB) Save(ctx context.Context, rec *pipeline.Record) (string, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode record: %w", err)
	}
	id := uuid.New().String()

	var cross any
	if rec.Trust.CrossValidation != nil {
		cross = *rec.Trust.CrossValidation
	}
	q, args := d.builder().Insert(tableRecords).
		Columns("id", "document_id", "strategy", "overall_trust", "cross_validation", "trusted", "record_json", "created_at").
		Values(id, rec.DocumentID, rec.Strategy, rec.Trust.Overall, cross, rec.Trust.Trusted, string(raw), time.Now().UTC()).
		Query()
	if _, err := d.drv.DB().ExecContext(ctx, q, args...); err != nil {
		d.logger.Error("repository.save.failed", "document_id", rec.DocumentID, "error", err)
		return "", fmt.Errorf("insert record: %w", err)
	}
	d.logger.Debug("repository.save.ok", "id", id, "document_id", rec.DocumentID)
	return id, nil
}

// Count returns the number of stored records.
func (d *DB) Count(ctx context.Context) (int, error) {
	q, args := d.builder().Select(entsql.Count("*")).From(entsql.Table(tableRecords)).Query()
	var n int
	if err := d.drv.DB().QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// Recent returns up to limit records, newest first.
func (d *DB) Recent(ctx context.Context, limit int) ([]StoredRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	q, args := d.builder().
		Select("id", "document_id", "strategy", "overall_trust", "cross_validation", "trusted", "record_json", "created_at").
		From(entsql.Table(tableRecords)).
		OrderBy(entsql.Desc("created_at"), entsql.Desc("id")).
		Limit(limit).
		Query()
	rows, err := d.drv.DB().QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []StoredRecord
	for rows.Next() {
		var (
			r     StoredRecord
			cross sql.NullFloat64
			raw   string
		)
		if err := rows.Scan(&r.ID, &r.DocumentID, &r.Strategy, &r.OverallTrust, &cross, &r.Trusted, &raw, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if cross.Valid {
			v := cross.Float64
			r.CrossValidation = &v
		}
		r.Record = json.RawMessage(raw)
		out = append(out, r)
	}
	return out, rows.Err()
}
