package uploads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/logistics-billing/internal/ingest"
	"github.com/odyssey-erp/logistics-billing/internal/platform/db"
)

const insertChunk = 100

// Store is the persistence contract of the Service.
type Store interface {
	FindSuccessful(ctx context.Context, checksum string, kind FileKind) (UploadLog, bool, error)
	RecordFailure(ctx context.Context, log UploadLog) error
	WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error
	GetUpload(ctx context.Context, id string) (UploadLog, error)
	ListUploads(ctx context.Context, filter ListFilter) ([]UploadLog, int, error)
	ListRejected(ctx context.Context, filter RejectedFilter) ([]RejectedRow, int, error)
}

// TxStore groups the writes that must commit together.
type TxStore interface {
	InsertLog(ctx context.Context, log UploadLog) error
	MarkFailed(ctx context.Context, id, message string) error
	DeleteUpload(ctx context.Context, id string) (Displaced, error)
	DeleteUploadFacts(ctx context.Context, id string) ([]time.Time, error)
	InsertInbound(ctx context.Context, uploadID string, rows []ingest.InboundRow) error
	InsertOutbound(ctx context.Context, uploadID string, rows []ingest.OutboundRow) error
	DeleteOutboundMatches(ctx context.Context, rows []ingest.OutboundRow) ([]StoredOutbound, error)
	Restore(ctx context.Context, d Displaced) error
	InsertRejected(ctx context.Context, uploadID string, rows []ingest.Rejected) error
	DeleteKind(ctx context.Context, kind FileKind) (int, []time.Time, error)
}

// Repository persists uploads and facts in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txStore struct {
	tx pgx.Tx
}

// WithTx runs fn inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txStore{tx: tx})
	})
}

const uploadColumns = `id::text, file_name, file_type, checksum, status, row_count, rejected_count, COALESCE(message, ''), created_at`

func scanUpload(row pgx.Row) (UploadLog, error) {
	var u UploadLog
	err := row.Scan(&u.ID, &u.FileName, &u.FileType, &u.Checksum, &u.Status, &u.RowCount, &u.RejectedCount, &u.Message, &u.CreatedAt)
	return u, err
}

// FindSuccessful looks up a committed upload with the same content.
func (r *Repository) FindSuccessful(ctx context.Context, checksum string, kind FileKind) (UploadLog, bool, error) {
	u, err := scanUpload(r.pool.QueryRow(ctx, `SELECT `+uploadColumns+`
FROM upload_logs WHERE checksum = $1 AND file_type = $2 AND status = 'SUCCESS'
ORDER BY created_at DESC LIMIT 1`, checksum, kind))
	if errors.Is(err, pgx.ErrNoRows) {
		return UploadLog{}, false, nil
	}
	if err != nil {
		return UploadLog{}, false, fmt.Errorf("uploads: find checksum: %w", err)
	}
	return u, true, nil
}

// RecordFailure stores a FAILED upload log outside any fact transaction.
func (r *Repository) RecordFailure(ctx context.Context, log UploadLog) error {
	return insertLog(ctx, r.pool, log)
}

func markFailed(ctx context.Context, q execer, id, message string) error {
	tag, err := q.Exec(ctx, `UPDATE upload_logs SET status = 'FAILED', message = $2 WHERE id::text = $1`, id, message)
	if err != nil {
		return fmt.Errorf("uploads: mark failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUploadNotFound
	}
	return nil
}

// GetUpload loads a single upload log.
func (r *Repository) GetUpload(ctx context.Context, id string) (UploadLog, error) {
	u, err := scanUpload(r.pool.QueryRow(ctx, `SELECT `+uploadColumns+` FROM upload_logs WHERE id::text = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return UploadLog{}, ErrUploadNotFound
	}
	if err != nil {
		return UploadLog{}, fmt.Errorf("uploads: get: %w", err)
	}
	return u, nil
}

// ListUploads returns upload history, newest first.
func (r *Repository) ListUploads(ctx context.Context, filter ListFilter) ([]UploadLog, int, error) {
	var (
		where []string
		args  []any
	)
	if filter.FileType != "" {
		args = append(args, filter.FileType)
		where = append(where, fmt.Sprintf("file_type = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM upload_logs`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("uploads: count: %w", err)
	}
	args = append(args, filter.Limit, filter.Offset)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM upload_logs%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		uploadColumns, clause, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("uploads: list: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (UploadLog, error) {
		return scanUpload(row)
	})
	if err != nil {
		return nil, 0, fmt.Errorf("uploads: list: %w", err)
	}
	return items, total, nil
}

// ListRejected returns rejected rows ordered by upload then row number.
func (r *Repository) ListRejected(ctx context.Context, filter RejectedFilter) ([]RejectedRow, int, error) {
	var (
		conds []string
		args  []any
	)
	if filter.UploadID != "" {
		args = append(args, filter.UploadID)
		conds = append(conds, fmt.Sprintf("r.upload_id::text = $%d", len(args)))
	}
	if filter.FileType != "" {
		args = append(args, string(filter.FileType))
		conds = append(conds, fmt.Sprintf("u.file_type = $%d", len(args)))
	}
	from := ` FROM rejected_rows r JOIN upload_logs u ON u.id = r.upload_id`
	if len(conds) > 0 {
		from += " WHERE " + strings.Join(conds, " AND ")
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+from, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("uploads: count rejected: %w", err)
	}
	args = append(args, filter.Limit, filter.Offset)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT r.upload_id::text, u.file_name, r.row_number, r.data, r.reason, r.created_at%s
ORDER BY r.created_at DESC, r.row_number LIMIT $%d OFFSET $%d`, from, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("uploads: list rejected: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (RejectedRow, error) {
		var (
			rr  RejectedRow
			raw []byte
		)
		if err := row.Scan(&rr.UploadID, &rr.FileName, &rr.RowNumber, &raw, &rr.Reason, &rr.CreatedAt); err != nil {
			return rr, err
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &rr.Data); err != nil {
				return rr, err
			}
		}
		return rr, nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("uploads: list rejected: %w", err)
	}
	return items, total, nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertLog(ctx context.Context, q execer, log UploadLog) error {
	_, err := q.Exec(ctx, `INSERT INTO upload_logs
	(id, file_name, file_type, checksum, status, row_count, rejected_count, message, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9)`,
		log.ID, log.FileName, log.FileType, log.Checksum, log.Status, log.RowCount, log.RejectedCount, log.Message, log.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return &DuplicateError{FileName: log.FileName}
		}
		return fmt.Errorf("uploads: insert log: %w", err)
	}
	return nil
}

func (t *txStore) InsertLog(ctx context.Context, log UploadLog) error {
	return insertLog(ctx, t.tx, log)
}

func (t *txStore) MarkFailed(ctx context.Context, id, message string) error {
	return markFailed(ctx, t.tx, id, message)
}

const (
	inboundReturning = `upload_id::text, received_date, COALESCE(invoice_no, ''), invoice_value,
	COALESCE(party_name, ''), invoice_qty, boxes, COALESCE(type, ''), COALESCE(article_no, '')`
	outboundReturning = `upload_id::text, invoice_no, invoice_date, dispatched_date,
	COALESCE(party_name, ''), invoice_qty, boxes, gross_total`
)

func scanInbound(row pgx.CollectableRow) (StoredInbound, error) {
	var f StoredInbound
	err := row.Scan(&f.UploadID, &f.Row.ReceivedDate, &f.Row.InvoiceNo, &f.Row.InvoiceValue,
		&f.Row.PartyName, &f.Row.InvoiceQty, &f.Row.Boxes, &f.Row.Type, &f.Row.ArticleNo)
	return f, err
}

func scanOutbound(row pgx.CollectableRow) (StoredOutbound, error) {
	var f StoredOutbound
	err := row.Scan(&f.UploadID, &f.Row.InvoiceNo, &f.Row.InvoiceDate, &f.Row.DispatchedDate,
		&f.Row.PartyName, &f.Row.InvoiceQty, &f.Row.Boxes, &f.Row.GrossTotal)
	return f, err
}

func scanRejected(row pgx.CollectableRow) (StoredRejected, error) {
	var (
		f   StoredRejected
		raw []byte
	)
	if err := row.Scan(&f.UploadID, &f.Row.RowNumber, &raw, &f.Row.Reason); err != nil {
		return f, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &f.Row.Data); err != nil {
			return f, err
		}
	}
	return f, nil
}

// DeleteUpload removes an upload with its facts and rejected rows and returns
// everything it removed.
func (t *txStore) DeleteUpload(ctx context.Context, id string) (Displaced, error) {
	var d Displaced
	rows, err := t.tx.Query(ctx, `DELETE FROM inbound_facts WHERE upload_id::text = $1 RETURNING `+inboundReturning, id)
	if err != nil {
		return d, fmt.Errorf("uploads: delete inbound facts: %w", err)
	}
	if d.Inbound, err = pgx.CollectRows(rows, scanInbound); err != nil {
		return d, fmt.Errorf("uploads: delete inbound facts: %w", err)
	}
	rows, err = t.tx.Query(ctx, `DELETE FROM outbound_facts WHERE upload_id::text = $1 RETURNING `+outboundReturning, id)
	if err != nil {
		return d, fmt.Errorf("uploads: delete outbound facts: %w", err)
	}
	if d.Outbound, err = pgx.CollectRows(rows, scanOutbound); err != nil {
		return d, fmt.Errorf("uploads: delete outbound facts: %w", err)
	}
	rows, err = t.tx.Query(ctx, `DELETE FROM rejected_rows WHERE upload_id::text = $1
RETURNING upload_id::text, row_number, data, reason`, id)
	if err != nil {
		return d, fmt.Errorf("uploads: delete rejected rows: %w", err)
	}
	if d.Rejected, err = pgx.CollectRows(rows, scanRejected); err != nil {
		return d, fmt.Errorf("uploads: delete rejected rows: %w", err)
	}
	rows, err = t.tx.Query(ctx, `DELETE FROM upload_logs WHERE id::text = $1 RETURNING `+uploadColumns, id)
	if err != nil {
		return d, fmt.Errorf("uploads: delete log: %w", err)
	}
	if d.Logs, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (UploadLog, error) { return scanUpload(row) }); err != nil {
		return d, fmt.Errorf("uploads: delete log: %w", err)
	}
	return d, nil
}

// Restore re-inserts displaced rows under their original upload ids.
func (t *txStore) Restore(ctx context.Context, d Displaced) error {
	for _, log := range d.Logs {
		if err := insertLog(ctx, t.tx, log); err != nil {
			return err
		}
	}
	const inboundQ = `INSERT INTO inbound_facts
	(upload_id, received_date, invoice_no, invoice_value, party_name, invoice_qty, boxes, type, article_no)
VALUES ($1, $2, NULLIF($3, ''), $4, NULLIF($5, ''), $6, $7, NULLIF($8, ''), NULLIF($9, ''))`
	err := sendChunks(ctx, t.tx, len(d.Inbound), func(b *pgx.Batch, i int) {
		f := d.Inbound[i]
		b.Queue(inboundQ, f.UploadID, f.Row.ReceivedDate, f.Row.InvoiceNo, f.Row.InvoiceValue, f.Row.PartyName, f.Row.InvoiceQty, f.Row.Boxes, f.Row.Type, f.Row.ArticleNo)
	})
	if err != nil {
		return fmt.Errorf("uploads: restore inbound: %w", err)
	}
	const outboundQ = `INSERT INTO outbound_facts
	(upload_id, invoice_no, invoice_date, dispatched_date, party_name, invoice_qty, boxes, gross_total)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8)`
	err = sendChunks(ctx, t.tx, len(d.Outbound), func(b *pgx.Batch, i int) {
		f := d.Outbound[i]
		b.Queue(outboundQ, f.UploadID, f.Row.InvoiceNo, f.Row.InvoiceDate, f.Row.DispatchedDate, f.Row.PartyName, f.Row.InvoiceQty, f.Row.Boxes, f.Row.GrossTotal)
	})
	if err != nil {
		return fmt.Errorf("uploads: restore outbound: %w", err)
	}
	byUpload := make(map[string][]ingest.Rejected)
	var order []string
	for _, r := range d.Rejected {
		if _, seen := byUpload[r.UploadID]; !seen {
			order = append(order, r.UploadID)
		}
		byUpload[r.UploadID] = append(byUpload[r.UploadID], r.Row)
	}
	for _, id := range order {
		if err := t.InsertRejected(ctx, id, byUpload[id]); err != nil {
			return fmt.Errorf("uploads: restore rejected: %w", err)
		}
	}
	return nil
}

func (t *txStore) DeleteUploadFacts(ctx context.Context, id string) ([]time.Time, error) {
	var dates []time.Time
	for _, q := range []string{
		`DELETE FROM inbound_facts WHERE upload_id::text = $1 RETURNING received_date`,
		`DELETE FROM outbound_facts WHERE upload_id::text = $1 RETURNING invoice_date`,
	} {
		got, err := collectDates(ctx, t.tx, q, id)
		if err != nil {
			return nil, fmt.Errorf("uploads: delete facts: %w", err)
		}
		dates = append(dates, got...)
	}
	return dates, nil
}

func collectDates(ctx context.Context, tx pgx.Tx, sql string, args ...any) ([]time.Time, error) {
	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[time.Time])
}

func (t *txStore) InsertInbound(ctx context.Context, uploadID string, rows []ingest.InboundRow) error {
	const q = `INSERT INTO inbound_facts
	(upload_id, received_date, invoice_no, invoice_value, party_name, invoice_qty, boxes, type, article_no)
VALUES ($1, $2, NULLIF($3, ''), $4, NULLIF($5, ''), $6, $7, NULLIF($8, ''), NULLIF($9, ''))`
	return sendChunks(ctx, t.tx, len(rows), func(b *pgx.Batch, i int) {
		r := rows[i]
		b.Queue(q, uploadID, r.ReceivedDate, r.InvoiceNo, r.InvoiceValue, r.PartyName, r.InvoiceQty, r.Boxes, r.Type, r.ArticleNo)
	})
}

func (t *txStore) InsertOutbound(ctx context.Context, uploadID string, rows []ingest.OutboundRow) error {
	const q = `INSERT INTO outbound_facts
	(upload_id, invoice_no, invoice_date, dispatched_date, party_name, invoice_qty, boxes, gross_total)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8)`
	return sendChunks(ctx, t.tx, len(rows), func(b *pgx.Batch, i int) {
		r := rows[i]
		b.Queue(q, uploadID, r.InvoiceNo, r.InvoiceDate, r.DispatchedDate, r.PartyName, r.InvoiceQty, r.Boxes, r.GrossTotal)
	})
}

// DeleteOutboundMatches removes stored outbound facts sharing (invoice_no, invoice_date) with rows.
func (t *txStore) DeleteOutboundMatches(ctx context.Context, rows []ingest.OutboundRow) ([]StoredOutbound, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	nos := make([]string, len(rows))
	dates := make([]time.Time, len(rows))
	for i, r := range rows {
		nos[i] = r.InvoiceNo
		dates[i] = r.InvoiceDate
	}
	found, err := t.tx.Query(ctx, `DELETE FROM outbound_facts f
USING unnest($1::text[], $2::timestamptz[]) AS k(invoice_no, invoice_date)
WHERE f.invoice_no = k.invoice_no AND f.invoice_date = k.invoice_date
RETURNING f.upload_id::text, f.invoice_no, f.invoice_date, f.dispatched_date,
	COALESCE(f.party_name, ''), f.invoice_qty, f.boxes, f.gross_total`, nos, dates)
	if err != nil {
		return nil, fmt.Errorf("uploads: dedup outbound: %w", err)
	}
	removed, err := pgx.CollectRows(found, scanOutbound)
	if err != nil {
		return nil, fmt.Errorf("uploads: dedup outbound: %w", err)
	}
	return removed, nil
}

func (t *txStore) InsertRejected(ctx context.Context, uploadID string, rows []ingest.Rejected) error {
	const q = `INSERT INTO rejected_rows (upload_id, row_number, data, reason) VALUES ($1, $2, $3, $4)`
	payloads := make([][]byte, len(rows))
	for i, r := range rows {
		raw, err := json.Marshal(r.Data)
		if err != nil {
			return fmt.Errorf("uploads: encode rejected row %d: %w", r.RowNumber, err)
		}
		payloads[i] = raw
	}
	return sendChunks(ctx, t.tx, len(rows), func(b *pgx.Batch, i int) {
		b.Queue(q, uploadID, rows[i].RowNumber, payloads[i], rows[i].Reason)
	})
}

func (t *txStore) DeleteKind(ctx context.Context, kind FileKind) (int, []time.Time, error) {
	q := `DELETE FROM inbound_facts RETURNING received_date`
	if kind == KindOutbound {
		q = `DELETE FROM outbound_facts RETURNING invoice_date`
	}
	dates, err := collectDates(ctx, t.tx, q)
	if err != nil {
		return 0, nil, fmt.Errorf("uploads: delete %s facts: %w", strings.ToLower(string(kind)), err)
	}
	if _, err := t.tx.Exec(ctx, `DELETE FROM upload_logs WHERE file_type = $1`, kind); err != nil {
		return 0, nil, fmt.Errorf("uploads: delete %s logs: %w", strings.ToLower(string(kind)), err)
	}
	return len(dates), dates, nil
}

func sendChunks(ctx context.Context, tx pgx.Tx, n int, queue func(*pgx.Batch, int)) error {
	for start := 0; start < n; start += insertChunk {
		end := min(start+insertChunk, n)
		batch := &pgx.Batch{}
		for i := start; i < end; i++ {
			queue(batch, i)
		}
		results := tx.SendBatch(ctx, batch)
		for i := start; i < end; i++ {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return fmt.Errorf("uploads: batch row %d: %w", i, err)
			}
		}
		if err := results.Close(); err != nil {
			return err
		}
	}
	return nil
}
