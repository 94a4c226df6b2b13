package uploads

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/odyssey-erp/logistics-billing/internal/ingest"
	"github.com/odyssey-erp/logistics-billing/internal/platform/httpx"
)

type storedInbound struct {
	uploadID string
	row      ingest.InboundRow
}

type storedOutbound struct {
	uploadID string
	row      ingest.OutboundRow
}

type storedRejected struct {
	uploadID string
	row      ingest.Rejected
}

type memoryState struct {
	logs     []UploadLog
	inbound  []storedInbound
	outbound []storedOutbound
	rejected []storedRejected
}

func (s memoryState) clone() memoryState {
	return memoryState{
		logs:     append([]UploadLog(nil), s.logs...),
		inbound:  append([]storedInbound(nil), s.inbound...),
		outbound: append([]storedOutbound(nil), s.outbound...),
		rejected: append([]storedRejected(nil), s.rejected...),
	}
}

type memoryStore struct {
	state        memoryState
	failRejected bool
}

func (m *memoryStore) FindSuccessful(ctx context.Context, checksum string, kind FileKind) (UploadLog, bool, error) {
	for _, l := range m.state.logs {
		if l.Checksum == checksum && l.FileType == kind && l.Status == StatusSuccess {
			return l, true, nil
		}
	}
	return UploadLog{}, false, nil
}

func (m *memoryStore) RecordFailure(ctx context.Context, log UploadLog) error {
	m.state.logs = append(m.state.logs, log)
	return nil
}

func (m *memoryStore) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	snapshot := m.state.clone()
	if err := fn(ctx, &memoryTx{m: m}); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

func (m *memoryStore) GetUpload(ctx context.Context, id string) (UploadLog, error) {
	for _, l := range m.state.logs {
		if l.ID == id {
			return l, nil
		}
	}
	return UploadLog{}, ErrUploadNotFound
}

func (m *memoryStore) ListUploads(ctx context.Context, filter ListFilter) ([]UploadLog, int, error) {
	var out []UploadLog
	for _, l := range m.state.logs {
		if filter.FileType != "" && l.FileType != filter.FileType {
			continue
		}
		if filter.Status != "" && l.Status != filter.Status {
			continue
		}
		out = append(out, l)
	}
	return pageOf(out, filter.Limit, filter.Offset), len(out), nil
}

func (m *memoryStore) ListRejected(ctx context.Context, filter RejectedFilter) ([]RejectedRow, int, error) {
	var out []RejectedRow
	for _, r := range m.state.rejected {
		if filter.UploadID != "" && r.uploadID != filter.UploadID {
			continue
		}
		if filter.FileType != "" && m.kindOf(r.uploadID) != filter.FileType {
			continue
		}
		out = append(out, RejectedRow{UploadID: r.uploadID, RowNumber: r.row.RowNumber, Data: r.row.Data, Reason: r.row.Reason})
	}
	return pageOf(out, filter.Limit, filter.Offset), len(out), nil
}

func (m *memoryStore) kindOf(uploadID string) FileKind {
	for _, l := range m.state.logs {
		if l.ID == uploadID {
			return l.FileType
		}
	}
	return ""
}

func pageOf[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	end := min(offset+limit, len(items))
	return items[offset:end]
}

type memoryTx struct {
	m *memoryStore
}

func (t *memoryTx) InsertLog(ctx context.Context, log UploadLog) error {
	for _, l := range t.m.state.logs {
		if l.Checksum == log.Checksum && l.FileType == log.FileType && l.Status == StatusSuccess && log.Status == StatusSuccess {
			return &DuplicateError{}
		}
	}
	t.m.state.logs = append(t.m.state.logs, log)
	return nil
}

func (t *memoryTx) MarkFailed(ctx context.Context, id, message string) error {
	for i := range t.m.state.logs {
		if t.m.state.logs[i].ID == id {
			t.m.state.logs[i].Status = StatusFailed
			t.m.state.logs[i].Message = message
			return nil
		}
	}
	return ErrUploadNotFound
}

func (t *memoryTx) DeleteUpload(ctx context.Context, id string) (Displaced, error) {
	var d Displaced
	for _, f := range t.m.state.inbound {
		if f.uploadID == id {
			d.Inbound = append(d.Inbound, StoredInbound{UploadID: id, Row: f.row})
		}
	}
	for _, f := range t.m.state.outbound {
		if f.uploadID == id {
			d.Outbound = append(d.Outbound, StoredOutbound{UploadID: id, Row: f.row})
		}
	}
	for _, r := range t.m.state.rejected {
		if r.uploadID == id {
			d.Rejected = append(d.Rejected, StoredRejected{UploadID: id, Row: r.row})
		}
	}
	_, _ = t.DeleteUploadFacts(ctx, id)
	logs := t.m.state.logs[:0]
	for _, l := range t.m.state.logs {
		if l.ID == id {
			d.Logs = append(d.Logs, l)
			continue
		}
		logs = append(logs, l)
	}
	t.m.state.logs = logs
	t.m.dropRejected(func(r storedRejected) bool { return r.uploadID == id })
	return d, nil
}

func (t *memoryTx) Restore(ctx context.Context, d Displaced) error {
	for _, l := range d.Logs {
		if err := t.InsertLog(ctx, l); err != nil {
			return err
		}
	}
	for _, f := range d.Inbound {
		t.m.state.inbound = append(t.m.state.inbound, storedInbound{f.UploadID, f.Row})
	}
	for _, f := range d.Outbound {
		t.m.state.outbound = append(t.m.state.outbound, storedOutbound{f.UploadID, f.Row})
	}
	for _, r := range d.Rejected {
		t.m.state.rejected = append(t.m.state.rejected, storedRejected{r.UploadID, r.Row})
	}
	return nil
}

func (m *memoryStore) dropRejected(match func(storedRejected) bool) {
	kept := m.state.rejected[:0]
	for _, r := range m.state.rejected {
		if !match(r) {
			kept = append(kept, r)
		}
	}
	m.state.rejected = kept
}

func (t *memoryTx) DeleteUploadFacts(ctx context.Context, id string) ([]time.Time, error) {
	var dates []time.Time
	inbound := t.m.state.inbound[:0]
	for _, f := range t.m.state.inbound {
		if f.uploadID == id {
			dates = append(dates, f.row.ReceivedDate)
			continue
		}
		inbound = append(inbound, f)
	}
	t.m.state.inbound = inbound
	outbound := t.m.state.outbound[:0]
	for _, f := range t.m.state.outbound {
		if f.uploadID == id {
			dates = append(dates, f.row.InvoiceDate)
			continue
		}
		outbound = append(outbound, f)
	}
	t.m.state.outbound = outbound
	return dates, nil
}

func (t *memoryTx) InsertInbound(ctx context.Context, uploadID string, rows []ingest.InboundRow) error {
	for _, r := range rows {
		t.m.state.inbound = append(t.m.state.inbound, storedInbound{uploadID, r})
	}
	return nil
}

func (t *memoryTx) InsertOutbound(ctx context.Context, uploadID string, rows []ingest.OutboundRow) error {
	for _, r := range rows {
		t.m.state.outbound = append(t.m.state.outbound, storedOutbound{uploadID, r})
	}
	return nil
}

func (t *memoryTx) DeleteOutboundMatches(ctx context.Context, rows []ingest.OutboundRow) ([]StoredOutbound, error) {
	var removed []StoredOutbound
	kept := t.m.state.outbound[:0]
	for _, f := range t.m.state.outbound {
		match := false
		for _, r := range rows {
			if f.row.InvoiceNo == r.InvoiceNo && f.row.InvoiceDate.Equal(r.InvoiceDate) {
				match = true
				break
			}
		}
		if match {
			removed = append(removed, StoredOutbound{UploadID: f.uploadID, Row: f.row})
			continue
		}
		kept = append(kept, f)
	}
	t.m.state.outbound = kept
	return removed, nil
}

func (t *memoryTx) InsertRejected(ctx context.Context, uploadID string, rows []ingest.Rejected) error {
	if t.m.failRejected {
		return errors.New("rejected insert failed")
	}
	for _, r := range rows {
		t.m.state.rejected = append(t.m.state.rejected, storedRejected{uploadID, r})
	}
	return nil
}

func (t *memoryTx) DeleteKind(ctx context.Context, kind FileKind) (int, []time.Time, error) {
	var dates []time.Time
	if kind == KindInbound {
		for _, f := range t.m.state.inbound {
			dates = append(dates, f.row.ReceivedDate)
		}
		t.m.state.inbound = nil
	} else {
		for _, f := range t.m.state.outbound {
			dates = append(dates, f.row.InvoiceDate)
		}
		t.m.state.outbound = nil
	}
	logs := t.m.state.logs[:0]
	removed := map[string]bool{}
	for _, l := range t.m.state.logs {
		if l.FileType == kind {
			removed[l.ID] = true
			continue
		}
		logs = append(logs, l)
	}
	t.m.state.logs = logs
	t.m.dropRejected(func(r storedRejected) bool { return removed[r.uploadID] })
	return len(dates), dates, nil
}

type fakeRefresher struct {
	calls   [][]time.Time
	cleared int
	err     error
}

func (f *fakeRefresher) Refresh(ctx context.Context, instants []time.Time) error {
	f.calls = append(f.calls, instants)
	if f.err != nil {
		err := f.err
		f.err = nil
		return err
	}
	return nil
}

func (f *fakeRefresher) ClearAll(ctx context.Context) error {
	f.cleared++
	return nil
}

type countingCache struct{ bumps int }

func (c *countingCache) Bump(ctx context.Context) error {
	c.bumps++
	return nil
}

var (
	quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
	fixedNow    = time.Date(2025, 2, 1, 9, 30, 0, 0, time.UTC)
)

type fixture struct {
	svc     *Service
	store   *memoryStore
	refresh *fakeRefresher
	cache   *countingCache
}

func newFixture(t *testing.T, dedup bool) fixture {
	t.Helper()
	store := &memoryStore{}
	refresh := &fakeRefresher{}
	cache := &countingCache{}
	parser := ingest.NewParser(quietLogger)
	parser.WithNow(func() time.Time { return fixedNow })
	svc := NewService(store, parser, Config{
		Refresher:     refresh,
		Cache:         cache,
		Archive:       NewArchive(t.TempDir()),
		OutboundDedup: dedup,
		Logger:        quietLogger,
	})
	svc.WithClock(func() time.Time { return fixedNow })
	return fixture{svc: svc, store: store, refresh: refresh, cache: cache}
}

func workbook(t *testing.T, sheet string, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	_, err := f.NewSheet(sheet)
	require.NoError(t, err)
	require.NoError(t, f.DeleteSheet("Sheet1"))
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		values := row
		require.NoError(t, f.SetSheetRow(sheet, cell, &values))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func inboundWorkbook(t *testing.T, extra ...[]any) []byte {
	rows := [][]any{
		{"Received Date", "Invoice No", "Invoice Value", "Invoice Qty", "Boxes"},
		{"19-10-2024", "IN-1", 1000, 10, 2},
		{"20-10-2024", "IN-2", 500, -3, 1},
	}
	return workbook(t, "PIPO & BIBO Inward", append(rows, extra...))
}

func outboundWorkbook(t *testing.T, lines ...[]any) []byte {
	rows := [][]any{
		{"Outward MIS"},
		{"Invoice No.", "Invoice Date", "Invoice Qty", "No. Of Box", "INVOICE GROSS TOTAL VALUE"},
	}
	return workbook(t, "Outward MIS", append(rows, lines...))
}

func TestIngestInboundStoresFactsAndRejected(t *testing.T) {
	fx := newFixture(t, false)
	res, err := fx.svc.Ingest(context.Background(), IngestRequest{Kind: KindInbound, FileName: "inward.xlsx", Data: inboundWorkbook(t)})
	require.NoError(t, err)
	require.Equal(t, 1, res.RowCount)
	require.Equal(t, 1, res.RejectedCount)
	require.False(t, res.Replaced)
	require.Len(t, fx.store.state.inbound, 1)
	require.Len(t, fx.store.state.rejected, 1)
	require.Equal(t, 3, fx.store.state.rejected[0].row.RowNumber)

	require.Len(t, fx.store.state.logs, 1)
	log := fx.store.state.logs[0]
	require.Equal(t, StatusSuccess, log.Status)
	require.Equal(t, res.UploadID, log.ID)
	require.Equal(t, Checksum(inboundWorkbook(t)), log.Checksum)

	require.Len(t, fx.refresh.calls, 1)
	require.Equal(t, []time.Time{time.Date(2024, 10, 19, 0, 0, 0, 0, time.UTC)}, fx.refresh.calls[0])
	require.Equal(t, 1, fx.cache.bumps)
}

func TestIngestDuplicateChecksum(t *testing.T) {
	fx := newFixture(t, false)
	ctx := context.Background()
	data := inboundWorkbook(t)
	first, err := fx.svc.Ingest(ctx, IngestRequest{Kind: KindInbound, FileName: "a.xlsx", Data: data})
	require.NoError(t, err)

	_, err = fx.svc.Ingest(ctx, IngestRequest{Kind: KindInbound, FileName: "b.xlsx", Data: data})
	require.ErrorIs(t, err, httpx.ErrDuplicate)
	dup, ok := IsDuplicate(err)
	require.True(t, ok)
	require.Equal(t, first.UploadID, dup.ExistingID)
	require.Len(t, fx.store.state.inbound, 1)

	second, err := fx.svc.Ingest(ctx, IngestRequest{Kind: KindInbound, FileName: "b.xlsx", Data: data, Replace: true})
	require.NoError(t, err)
	require.True(t, second.Replaced)
	require.NotEqual(t, first.UploadID, second.UploadID)
	require.Len(t, fx.store.state.inbound, 1)
	require.Equal(t, second.UploadID, fx.store.state.inbound[0].uploadID)
	require.Len(t, fx.store.state.logs, 1)
	require.Len(t, fx.store.state.rejected, 1)
}

func TestIngestSameBytesDifferentKindIsNotDuplicate(t *testing.T) {
	fx := newFixture(t, false)
	data := inboundWorkbook(t)
	_, err := fx.svc.Ingest(context.Background(), IngestRequest{Kind: KindInbound, FileName: "a.xlsx", Data: data})
	require.NoError(t, err)
	_, err = fx.svc.Ingest(context.Background(), IngestRequest{Kind: KindOutbound, FileName: "a.xlsx", Data: data})
	require.True(t, IsFileError(err))
	require.ErrorIs(t, err, httpx.ErrUnprocessable)
}

func TestIngestStructuralFailureRecordsFailedLog(t *testing.T) {
	fx := newFixture(t, false)
	data := workbook(t, "Sheet2", [][]any{{"x"}, {1}})
	_, err := fx.svc.Ingest(context.Background(), IngestRequest{Kind: KindInbound, FileName: "wrong.xlsx", Data: data})
	require.True(t, IsFileError(err))
	require.True(t, ingest.IsStructural(err))
	require.Len(t, fx.store.state.logs, 1)
	require.Equal(t, StatusFailed, fx.store.state.logs[0].Status)
	require.Contains(t, fx.store.state.logs[0].Message, "Sheet2")
	require.Empty(t, fx.store.state.inbound)
	require.Empty(t, fx.refresh.calls)
}

func TestIngestRejectsEmptyAndUnknownKind(t *testing.T) {
	fx := newFixture(t, false)
	_, err := fx.svc.Ingest(context.Background(), IngestRequest{Kind: KindInbound})
	require.ErrorIs(t, err, httpx.ErrValidation)
	_, err = fx.svc.Ingest(context.Background(), IngestRequest{Kind: "RETURNS", Data: []byte("x")})
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestIngestTransactionFailureLeavesNothing(t *testing.T) {
	fx := newFixture(t, false)
	fx.store.failRejected = true
	_, err := fx.svc.Ingest(context.Background(), IngestRequest{Kind: KindInbound, FileName: "a.xlsx", Data: inboundWorkbook(t)})
	require.Error(t, err)
	require.Empty(t, fx.store.state.logs)
	require.Empty(t, fx.store.state.inbound)
	require.Empty(t, fx.refresh.calls)
}

func TestIngestRefreshFailureRollsBackFacts(t *testing.T) {
	fx := newFixture(t, false)
	fx.refresh.err = errors.New("db down")
	_, err := fx.svc.Ingest(context.Background(), IngestRequest{Kind: KindInbound, FileName: "a.xlsx", Data: inboundWorkbook(t)})
	require.Error(t, err)
	require.Empty(t, fx.store.state.inbound)
	require.Len(t, fx.store.state.logs, 1)
	require.Equal(t, StatusFailed, fx.store.state.logs[0].Status)
	require.Contains(t, fx.store.state.logs[0].Message, "db down")
	require.Len(t, fx.refresh.calls, 2)
}

func TestIngestReplaceRefreshFailureKeepsPreviousUpload(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, false)
	data := inboundWorkbook(t)
	first, err := fx.svc.Ingest(ctx, IngestRequest{Kind: KindInbound, FileName: "a.xlsx", Data: data})
	require.NoError(t, err)
	facts := append([]storedInbound(nil), fx.store.state.inbound...)
	rejected := append([]storedRejected(nil), fx.store.state.rejected...)
	require.NotEmpty(t, facts)

	fx.refresh.err = errors.New("db down")
	_, err = fx.svc.Ingest(ctx, IngestRequest{Kind: KindInbound, FileName: "a.xlsx", Data: data, Replace: true})
	require.Error(t, err)

	kept, err := fx.store.GetUpload(ctx, first.UploadID)
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, kept.Status)
	require.ElementsMatch(t, facts, fx.store.state.inbound)
	require.ElementsMatch(t, rejected, fx.store.state.rejected)

	require.Len(t, fx.store.state.logs, 2)
	for _, l := range fx.store.state.logs {
		if l.ID != first.UploadID {
			require.Equal(t, StatusFailed, l.Status)
		}
	}
	last := fx.refresh.calls[len(fx.refresh.calls)-1]
	for _, f := range facts {
		require.Contains(t, last, f.row.ReceivedDate)
	}

	_, err = fx.svc.Ingest(ctx, IngestRequest{Kind: KindInbound, FileName: "a.xlsx", Data: data})
	var dup *DuplicateError
	require.ErrorAs(t, err, &dup)
	require.Equal(t, first.UploadID, dup.ExistingID)
}

func TestIngestDedupRefreshFailureRestoresReplacedInvoices(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, true)
	_, err := fx.svc.Ingest(ctx, IngestRequest{Kind: KindOutbound, FileName: "a.xlsx", Data: outboundWorkbook(t,
		[]any{"INV-1", "19-10-2024", 1, 1, 100},
		[]any{"INV-2", "19-10-2024", 1, 1, 200},
	)})
	require.NoError(t, err)
	before := append([]storedOutbound(nil), fx.store.state.outbound...)

	fx.refresh.err = errors.New("db down")
	_, err = fx.svc.Ingest(ctx, IngestRequest{Kind: KindOutbound, FileName: "b.xlsx", Data: outboundWorkbook(t,
		[]any{"INV-1", "19-10-2024", 2, 2, 150},
	)})
	require.Error(t, err)
	require.ElementsMatch(t, before, fx.store.state.outbound)
}

func TestIngestOutboundDedup(t *testing.T) {
	ctx := context.Background()
	first := outboundWorkbook(t,
		[]any{"INV-1", "19-10-2024", 1, 1, 100},
		[]any{"INV-2", "19-10-2024", 1, 1, 200},
	)
	second := outboundWorkbook(t,
		[]any{"INV-1", "19-10-2024", 2, 2, 150},
		[]any{"INV-1", "19-10-2024", 3, 3, 175},
		[]any{"INV-3", "20-10-2024", 1, 1, 50},
	)

	t.Run("enabled", func(t *testing.T) {
		fx := newFixture(t, true)
		_, err := fx.svc.Ingest(ctx, IngestRequest{Kind: KindOutbound, FileName: "a.xlsx", Data: first})
		require.NoError(t, err)
		_, err = fx.svc.Ingest(ctx, IngestRequest{Kind: KindOutbound, FileName: "b.xlsx", Data: second})
		require.NoError(t, err)
		totals := map[string]float64{}
		for _, f := range fx.store.state.outbound {
			totals[f.row.InvoiceNo] += f.row.GrossTotal
		}
		require.Equal(t, map[string]float64{"INV-1": 175, "INV-2": 200, "INV-3": 50}, totals)
	})

	t.Run("disabled", func(t *testing.T) {
		fx := newFixture(t, false)
		_, err := fx.svc.Ingest(ctx, IngestRequest{Kind: KindOutbound, FileName: "a.xlsx", Data: first})
		require.NoError(t, err)
		_, err = fx.svc.Ingest(ctx, IngestRequest{Kind: KindOutbound, FileName: "b.xlsx", Data: second})
		require.NoError(t, err)
		require.Len(t, fx.store.state.outbound, 5)
	})
}

func TestIngestArchivesWorkbook(t *testing.T) {
	dir := t.TempDir()
	fx := newFixture(t, false)
	fx.svc.archive = NewArchive(dir)
	data := inboundWorkbook(t)
	_, err := fx.svc.Ingest(context.Background(), IngestRequest{Kind: KindInbound, FileName: "a.xlsx", Data: data})
	require.NoError(t, err)
	stored, err := os.ReadFile(filepath.Join(dir, "2025", "02", "01", "inbound-"+Checksum(data)+".xlsx"))
	require.NoError(t, err)
	require.Equal(t, data, stored)
}

func TestDeleteByScope(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, false)
	_, err := fx.svc.Ingest(ctx, IngestRequest{Kind: KindInbound, FileName: "in.xlsx", Data: inboundWorkbook(t)})
	require.NoError(t, err)
	_, err = fx.svc.Ingest(ctx, IngestRequest{Kind: KindOutbound, FileName: "out.xlsx", Data: outboundWorkbook(t, []any{"INV-1", "21-10-2024", 1, 1, 100})})
	require.NoError(t, err)

	res, err := fx.svc.Delete(ctx, ScopeOutbound)
	require.NoError(t, err)
	require.Equal(t, DeleteResult{Outbound: 1}, res)
	require.Empty(t, fx.store.state.outbound)
	require.Len(t, fx.store.state.inbound, 1)
	last := fx.refresh.calls[len(fx.refresh.calls)-1]
	require.Equal(t, []time.Time{time.Date(2024, 10, 21, 0, 0, 0, 0, time.UTC)}, last)

	res, err = fx.svc.Delete(ctx, ScopeAll)
	require.NoError(t, err)
	require.Equal(t, DeleteResult{Inbound: 1}, res)
	require.Equal(t, 1, fx.refresh.cleared)
	require.Empty(t, fx.store.state.logs)

	_, err = fx.svc.Delete(ctx, "returns")
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestListUploadsClampsWindow(t *testing.T) {
	fx := newFixture(t, false)
	for i := 0; i < 3; i++ {
		fx.store.state.logs = append(fx.store.state.logs, UploadLog{ID: string(rune('a' + i)), FileType: KindInbound, Status: StatusSuccess})
	}
	fx.store.state.logs = append(fx.store.state.logs, UploadLog{ID: "z", FileType: KindOutbound, Status: StatusFailed})

	page, err := fx.svc.ListUploads(context.Background(), ListFilter{FileType: KindInbound, Limit: 2})
	require.NoError(t, err)
	require.Equal(t, 3, page.Total)
	require.Len(t, page.Items, 2)

	page, err = fx.svc.ListUploads(context.Background(), ListFilter{Limit: 10_000, Offset: -4})
	require.NoError(t, err)
	require.Equal(t, maxLimit, page.Limit)
	require.Zero(t, page.Offset)
	require.Len(t, page.Items, 4)
}

func TestListRejectedByFileType(t *testing.T) {
	fx := newFixture(t, false)
	ctx := context.Background()
	_, err := fx.svc.Ingest(ctx, IngestRequest{Kind: KindInbound, FileName: "inward.xlsx", Data: inboundWorkbook(t)})
	require.NoError(t, err)

	page, err := fx.svc.ListRejected(ctx, RejectedFilter{FileType: KindInbound})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)

	page, err = fx.svc.ListRejected(ctx, RejectedFilter{FileType: KindOutbound})
	require.NoError(t, err)
	require.Zero(t, page.Total)
	require.NotNil(t, page.Items)
}

func TestListRejectedUnknownUpload(t *testing.T) {
	fx := newFixture(t, false)
	_, err := fx.svc.ListRejected(context.Background(), RejectedFilter{UploadID: "missing"})
	require.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestExportRejectedWorkbook(t *testing.T) {
	fx := newFixture(t, false)
	res, err := fx.svc.Ingest(context.Background(), IngestRequest{Kind: KindInbound, FileName: "in.xlsx", Data: inboundWorkbook(t)})
	require.NoError(t, err)

	var buf bytes.Buffer
	upload, err := fx.svc.ExportRejected(context.Background(), res.UploadID, &buf)
	require.NoError(t, err)
	require.Equal(t, "in.xlsx", upload.FileName)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	rows, err := f.GetRows(rejectedSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, []string{"Row Number", "Reason"}, rows[0][:2])
	require.Equal(t, "3", rows[1][0])
	require.Equal(t, "Validation error: Invoice Qty must be non-negative", rows[1][1])

	header := append([]string(nil), rows[0][2:]...)
	require.True(t, sort.StringsAreSorted(header))
	require.Contains(t, header, "Invoice No")
}
