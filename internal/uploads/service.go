package uploads

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/odyssey-erp/logistics-billing/internal/ingest"
	"github.com/odyssey-erp/logistics-billing/internal/platform/httpx"
)

// Refresher recomputes summaries after facts change.
type Refresher interface {
	Refresh(ctx context.Context, instants []time.Time) error
	ClearAll(ctx context.Context) error
}

// Invalidator drops cached read models.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Config wires optional collaborators of the Service.
type Config struct {
	Refresher     Refresher
	Cache         Invalidator
	Archive       *Archive
	Metrics       *Metrics
	OutboundDedup bool
	Logger        *slog.Logger
}

// Service loads workbooks into fact tables and keeps summaries in step.
type Service struct {
	store     Store
	parser    *ingest.Parser
	refresher Refresher
	cache     Invalidator
	archive   *Archive
	metrics   *Metrics
	dedup     bool
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

// NewService constructs Service.
func NewService(store Store, parser *ingest.Parser, cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if parser == nil {
		parser = ingest.NewParser(logger)
	}
	return &Service{
		store:     store,
		parser:    parser,
		refresher: cfg.Refresher,
		cache:     cfg.Cache,
		archive:   cfg.Archive,
		metrics:   cfg.Metrics,
		dedup:     cfg.OutboundDedup,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// WithClock overrides the clock used for upload timestamps.
func (s *Service) WithClock(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

// Checksum returns the hex SHA-256 of a workbook.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

type parsedBatch struct {
	inbound  []ingest.InboundRow
	outbound []ingest.OutboundRow
	rejected []ingest.Rejected
	skipped  int
	dates    []time.Time
}

func (b parsedBatch) valid() int { return len(b.inbound) + len(b.outbound) }

func (s *Service) parse(kind FileKind, data []byte) (parsedBatch, error) {
	var b parsedBatch
	switch kind {
	case KindInbound:
		res, err := s.parser.ParseInbound(data)
		if err != nil {
			return b, err
		}
		b.inbound, b.rejected, b.skipped = res.Valid, res.Rejected, res.Skipped
		for _, r := range res.Valid {
			b.dates = append(b.dates, r.ReceivedDate)
		}
	case KindOutbound:
		res, err := s.parser.ParseOutbound(data)
		if err != nil {
			return b, err
		}
		b.outbound, b.rejected, b.skipped = res.Valid, res.Rejected, res.Skipped
		for _, r := range res.Valid {
			b.dates = append(b.dates, r.InvoiceDate)
		}
	default:
		return b, fmt.Errorf("%w: unknown file kind %q", httpx.ErrValidation, kind)
	}
	return b, nil
}

// Ingest parses a workbook, stores its facts and rejected rows, then refreshes
// the summaries covering every touched date.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (IngestResult, error) {
	if _, err := ParseKind(string(req.Kind)); err != nil {
		return IngestResult{}, err
	}
	if len(req.Data) == 0 {
		return IngestResult{}, fmt.Errorf("%w: empty file", httpx.ErrValidation)
	}
	checksum := Checksum(req.Data)
	logger := s.logger.With(
		slog.String("file", req.FileName),
		slog.String("kind", string(req.Kind)),
		slog.String("checksum", checksum[:12]),
	)

	existing, found, err := s.store.FindSuccessful(ctx, checksum, req.Kind)
	if err != nil {
		return IngestResult{}, err
	}
	if found && !req.Replace {
		s.metrics.file(req.Kind, "duplicate")
		return IngestResult{}, &DuplicateError{ExistingID: existing.ID, FileName: existing.FileName}
	}

	entry := UploadLog{
		ID:        s.newID(),
		FileName:  req.FileName,
		FileType:  req.Kind,
		Checksum:  checksum,
		CreatedAt: s.now().UTC(),
	}

	batch, err := s.parse(req.Kind, req.Data)
	if err != nil {
		if !ingest.IsStructural(err) {
			return IngestResult{}, err
		}
		entry.Status = StatusFailed
		entry.Message = err.Error()
		if rerr := s.store.RecordFailure(ctx, entry); rerr != nil {
			logger.Warn("record failed upload", slog.Any("error", rerr))
		}
		s.metrics.file(req.Kind, "failed")
		logger.Info("upload rejected", slog.String("reason", err.Error()))
		return IngestResult{}, &FileError{Err: err}
	}

	entry.Status = StatusSuccess
	entry.RowCount = batch.valid()
	entry.RejectedCount = len(batch.rejected)

	var (
		touched   []time.Time
		displaced Displaced
	)
	err = s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		touched = append(touched[:0], batch.dates...)
		displaced = Displaced{}
		if found {
			old, err := tx.DeleteUpload(ctx, existing.ID)
			if err != nil {
				return err
			}
			displaced.add(old)
		}
		if err := tx.InsertLog(ctx, entry); err != nil {
			return err
		}
		replaced, err := s.insertFacts(ctx, tx, entry.ID, batch, logger)
		if err != nil {
			return err
		}
		displaced.Outbound = append(displaced.Outbound, replaced...)
		touched = append(touched, displaced.Dates()...)
		return tx.InsertRejected(ctx, entry.ID, batch.rejected)
	})
	if err != nil {
		if dup, ok := IsDuplicate(err); ok && dup.ExistingID == "" {
			dup.FileName = req.FileName
			s.metrics.file(req.Kind, "duplicate")
		}
		return IngestResult{}, err
	}

	if s.refresher != nil {
		if err := s.refresher.Refresh(ctx, touched); err != nil {
			s.rollback(ctx, entry.ID, touched, displaced, err, logger)
			s.metrics.file(req.Kind, "failed")
			return IngestResult{}, fmt.Errorf("uploads: refresh summaries: %w", err)
		}
	}
	s.invalidate(ctx, logger)

	if path, err := s.archive.Save(req.Kind, checksum, req.Data, entry.CreatedAt); err != nil {
		logger.Warn("archive upload", slog.Any("error", err))
	} else if path != "" {
		logger.Debug("upload archived", slog.String("path", path))
	}

	s.metrics.file(req.Kind, "success")
	s.metrics.rows(req.Kind, entry.RowCount, entry.RejectedCount, batch.skipped)
	logger.Info("upload stored",
		slog.String("upload_id", entry.ID),
		slog.Int("rows", entry.RowCount),
		slog.Int("rejected", entry.RejectedCount),
		slog.Int("skipped", batch.skipped),
		slog.Bool("replaced", found))

	return IngestResult{
		UploadID:      entry.ID,
		FileType:      req.Kind,
		Checksum:      checksum,
		RowCount:      entry.RowCount,
		RejectedCount: entry.RejectedCount,
		SkippedCount:  batch.skipped,
		Replaced:      found,
	}, nil
}

// insertFacts stores the batch and returns stored outbound facts it replaced.
func (s *Service) insertFacts(ctx context.Context, tx TxStore, uploadID string, batch parsedBatch, logger *slog.Logger) ([]StoredOutbound, error) {
	if len(batch.inbound) > 0 {
		return nil, tx.InsertInbound(ctx, uploadID, batch.inbound)
	}
	rows := batch.outbound
	if len(rows) == 0 {
		return nil, nil
	}
	var removed []StoredOutbound
	if s.dedup {
		rows = latestPerInvoice(rows)
		var err error
		if removed, err = tx.DeleteOutboundMatches(ctx, rows); err != nil {
			return nil, err
		}
		if dropped := len(batch.outbound) - len(rows); len(removed) > 0 || dropped > 0 {
			logger.Info("outbound duplicates replaced", slog.Int("stored", len(removed)), slog.Int("in_file", dropped))
		}
	}
	return removed, tx.InsertOutbound(ctx, uploadID, rows)
}

// latestPerInvoice keeps the last row for each (invoice number, invoice date) pair, preserving order.
func latestPerInvoice(rows []ingest.OutboundRow) []ingest.OutboundRow {
	type key struct {
		no   string
		date time.Time
	}
	last := make(map[key]int, len(rows))
	for i, r := range rows {
		last[key{r.InvoiceNo, r.InvoiceDate.UTC()}] = i
	}
	out := make([]ingest.OutboundRow, 0, len(last))
	for i, r := range rows {
		if last[key{r.InvoiceNo, r.InvoiceDate.UTC()}] == i {
			out = append(out, r)
		}
	}
	return out
}

// rollback undoes a committed ingest whose summaries could not be refreshed:
// the new facts go, the log turns FAILED and displaced rows come back.
func (s *Service) rollback(ctx context.Context, uploadID string, touched []time.Time, displaced Displaced, cause error, logger *slog.Logger) {
	ctx = context.WithoutCancel(ctx)
	logger.Error("summary refresh failed, removing upload facts", slog.String("upload_id", uploadID), slog.Any("error", cause))
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		if _, err := tx.DeleteUploadFacts(ctx, uploadID); err != nil {
			return err
		}
		if err := tx.MarkFailed(ctx, uploadID, "summary refresh failed: "+cause.Error()); err != nil {
			return err
		}
		if displaced.Empty() {
			return nil
		}
		return tx.Restore(ctx, displaced)
	})
	if err != nil {
		logger.Error("undo upload", slog.Any("error", err))
		return
	}
	if !displaced.Empty() {
		logger.Info("displaced rows restored",
			slog.Int("uploads", len(displaced.Logs)),
			slog.Int("inbound", len(displaced.Inbound)),
			slog.Int("outbound", len(displaced.Outbound)))
	}
	if err := s.refresher.Refresh(ctx, touched); err != nil {
		logger.Warn("re-refresh after rollback", slog.Any("error", err))
	}
	s.invalidate(ctx, logger)
}

func (s *Service) invalidate(ctx context.Context, logger *slog.Logger) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx); err != nil {
		logger.Warn("bump analytics cache", slog.Any("error", err))
	}
}

// Delete removes every fact of the scope and the matching upload history.
func (s *Service) Delete(ctx context.Context, scope DeleteScope) (DeleteResult, error) {
	var kinds []FileKind
	switch scope {
	case ScopeInbound:
		kinds = []FileKind{KindInbound}
	case ScopeOutbound:
		kinds = []FileKind{KindOutbound}
	case ScopeAll:
		kinds = []FileKind{KindInbound, KindOutbound}
	default:
		return DeleteResult{}, fmt.Errorf("%w: unknown delete scope %q", httpx.ErrValidation, scope)
	}

	var (
		res   DeleteResult
		dates []time.Time
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		for _, kind := range kinds {
			n, d, err := tx.DeleteKind(ctx, kind)
			if err != nil {
				return err
			}
			if kind == KindInbound {
				res.Inbound = n
			} else {
				res.Outbound = n
			}
			dates = append(dates, d...)
		}
		return nil
	})
	if err != nil {
		return DeleteResult{}, err
	}

	if s.refresher != nil {
		if scope == ScopeAll {
			err = s.refresher.ClearAll(ctx)
		} else {
			err = s.refresher.Refresh(ctx, dates)
		}
		if err != nil {
			return res, fmt.Errorf("uploads: refresh after delete: %w", err)
		}
	}
	s.invalidate(ctx, s.logger)
	s.logger.Info("facts deleted", slog.String("scope", string(scope)), slog.Int("inbound", res.Inbound), slog.Int("outbound", res.Outbound))
	return res, nil
}

// ListUploads pages through upload history.
func (s *Service) ListUploads(ctx context.Context, filter ListFilter) (Page[UploadLog], error) {
	filter.Limit, filter.Offset = clampWindow(filter.Limit, filter.Offset)
	items, total, err := s.store.ListUploads(ctx, filter)
	if err != nil {
		return Page[UploadLog]{}, err
	}
	if items == nil {
		items = []UploadLog{}
	}
	return Page[UploadLog]{Items: items, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

// ListRejected pages through rejected rows, optionally for a single upload.
func (s *Service) ListRejected(ctx context.Context, filter RejectedFilter) (Page[RejectedRow], error) {
	if filter.UploadID != "" {
		if _, err := s.store.GetUpload(ctx, filter.UploadID); err != nil {
			return Page[RejectedRow]{}, err
		}
	}
	filter.Limit, filter.Offset = clampWindow(filter.Limit, filter.Offset)
	items, total, err := s.store.ListRejected(ctx, filter)
	if err != nil {
		return Page[RejectedRow]{}, err
	}
	if items == nil {
		items = []RejectedRow{}
	}
	return Page[RejectedRow]{Items: items, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

const rejectedSheet = "Rejected Rows"

// ExportRejected writes an upload's rejected rows as an xlsx workbook.
func (s *Service) ExportRejected(ctx context.Context, uploadID string, w io.Writer) (UploadLog, error) {
	upload, err := s.store.GetUpload(ctx, uploadID)
	if err != nil {
		return UploadLog{}, err
	}
	var rows []RejectedRow
	for offset := 0; ; offset += maxLimit {
		page, _, err := s.store.ListRejected(ctx, RejectedFilter{UploadID: uploadID, Limit: maxLimit, Offset: offset})
		if err != nil {
			return UploadLog{}, err
		}
		rows = append(rows, page...)
		if len(page) < maxLimit {
			break
		}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].RowNumber < rows[j].RowNumber })

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName("Sheet1", rejectedSheet); err != nil {
		return UploadLog{}, err
	}
	columns := dataColumns(rows)
	header := []any{"Row Number", "Reason"}
	for _, c := range columns {
		header = append(header, c)
	}
	if err := f.SetSheetRow(rejectedSheet, "A1", &header); err != nil {
		return UploadLog{}, err
	}
	for i, r := range rows {
		line := []any{r.RowNumber, r.Reason}
		for _, c := range columns {
			line = append(line, r.Data[c])
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return UploadLog{}, err
		}
		if err := f.SetSheetRow(rejectedSheet, cell, &line); err != nil {
			return UploadLog{}, err
		}
	}
	if err := f.Write(w); err != nil {
		return UploadLog{}, fmt.Errorf("uploads: write rejected workbook: %w", err)
	}
	return upload, nil
}

func dataColumns(rows []RejectedRow) []string {
	seen := map[string]struct{}{}
	var cols []string
	for _, r := range rows {
		for k := range r.Data {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			cols = append(cols, k)
		}
	}
	sort.Strings(cols)
	return cols
}

// IsFileError reports whether err rejected the whole workbook.
func IsFileError(err error) bool {
	var fe *FileError
	return errors.As(err, &fe)
}
