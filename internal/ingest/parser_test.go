package ingest

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var fixedNow = time.Date(2025, time.February, 1, 9, 30, 0, 0, time.UTC)

func newTestParser() *Parser {
	p := NewParser(slog.New(slog.NewTextHandler(io.Discard, nil)))
	p.WithNow(func() time.Time { return fixedNow })
	return p
}

func workbook(t testing.TB, sheet string, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if sheet != "Sheet1" {
		_, err := f.NewSheet(sheet)
		require.NoError(t, err)
	}
	for i, r := range rows {
		if len(r) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		row := r
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

var inboundHeader = []any{"Received Date", "STN No./Invoice No.", "Invoice Value", "Invoice Qty", "Bags/Box", "Party Name", "SKU"}

func TestParseInboundPartitionsRows(t *testing.T) {
	data := workbook(t, "PIPO & BIBO Inward", [][]any{
		inboundHeader,
		{"19-10-2024", "STN-1", "₹1,000", 10, 2, " Acme ", "A-1"},
		{45584, "STN-2", 500, -5, 1, "Beta", ""},
		{},
		{"", "STN-3", "abc", 1, 1, "", ""},
		{"", "", "", 4, "", "", ""},
	})

	res, err := newTestParser().ParseInbound(data)
	require.NoError(t, err)
	require.Equal(t, res.DataRows, len(res.Valid)+len(res.Rejected)+res.Skipped)
	require.Equal(t, 1, res.Skipped)

	require.Len(t, res.Valid, 2)
	first := res.Valid[0]
	require.Equal(t, time.Date(2024, time.October, 19, 0, 0, 0, 0, time.UTC), first.ReceivedDate)
	require.Equal(t, "STN-1", first.InvoiceNo)
	require.InDelta(t, 1000.0, first.InvoiceValue, 1e-9)
	require.InDelta(t, 10.0, first.InvoiceQty, 1e-9)
	require.Equal(t, "Acme", first.PartyName)
	require.Equal(t, "A-1", first.ArticleNo)

	blanks := res.Valid[1]
	require.Equal(t, fixedNow, blanks.ReceivedDate)
	require.Empty(t, blanks.InvoiceNo)
	require.Zero(t, blanks.InvoiceValue)
	require.Zero(t, blanks.Boxes)
	require.InDelta(t, 4.0, blanks.InvoiceQty, 1e-9)

	require.Len(t, res.Rejected, 2)
	require.Equal(t, 3, res.Rejected[0].RowNumber)
	require.Equal(t, "Validation error: Invoice Qty must be non-negative", res.Rejected[0].Reason)
	require.Equal(t, "STN-2", res.Rejected[0].Data["STN No./Invoice No."])
	require.Equal(t, 5, res.Rejected[1].RowNumber)
	require.Contains(t, res.Rejected[1].Reason, "Invoice Value")
}

func TestParseInboundSheetLookupIsCaseInsensitive(t *testing.T) {
	data := workbook(t, "pipo & bibo INWARD", [][]any{
		inboundHeader,
		{"01-01-2025", "STN-9", 10, 1, 1, "", ""},
	})
	res, err := newTestParser().ParseInbound(data)
	require.NoError(t, err)
	require.Len(t, res.Valid, 1)
}

func TestParseInboundMissingSheet(t *testing.T) {
	data := workbook(t, "Sheet1", [][]any{inboundHeader})
	_, err := newTestParser().ParseInbound(data)
	var se *StructuralError
	require.ErrorAs(t, err, &se)
	require.Contains(t, se.Available, "Sheet1")
	require.True(t, IsStructural(err))
}

func TestParseInboundMissingColumn(t *testing.T) {
	data := workbook(t, "PIPO & BIBO Inward", [][]any{
		{"Received Date", "Invoice No", "Invoice Value", "Qty"},
		{"01-01-2025", "X", 1, 1},
	})
	_, err := newTestParser().ParseInbound(data)
	var se *StructuralError
	require.ErrorAs(t, err, &se)
	require.Contains(t, se.Reason, "boxes")
	require.Contains(t, se.Available, "Qty")
}

func TestParseNoDataRows(t *testing.T) {
	data := workbook(t, "PIPO & BIBO Inward", [][]any{
		inboundHeader,
		{"", "", "", "", "", "", ""},
	})
	_, err := newTestParser().ParseInbound(data)
	require.True(t, IsStructural(err))
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := newTestParser().ParseOutbound([]byte("not a workbook"))
	require.True(t, IsStructural(err))
}

var outboundHeader = []any{"Invoice No.", "Invoice Date", "Invoice Qty", "No. Of Box", "INVOICE GROSS TOTAL VALUE", "Dispatch Date", "Customer"}

func TestParseOutbound(t *testing.T) {
	data := workbook(t, "outward mis", [][]any{
		{"TOTAL", "", 30, 6, 150000},
		outboundHeader,
		{"INV-1", 45584, 10, 2, "₹1,00,000", "20-10-2024", "Acme"},
		{"", 45584, 10, 2, 100, "", ""},
		{1002, "", 10, 2, 50000, "someday", ""},
	})

	res, err := newTestParser().ParseOutbound(data)
	require.NoError(t, err)
	require.Equal(t, 3, res.DataRows)
	require.Len(t, res.Valid, 2)

	first := res.Valid[0]
	require.Equal(t, "INV-1", first.InvoiceNo)
	require.Equal(t, time.Date(2024, time.October, 19, 0, 0, 0, 0, time.UTC), first.InvoiceDate)
	require.InDelta(t, 100000.0, first.GrossTotal, 1e-9)
	require.NotNil(t, first.DispatchedDate)
	require.Equal(t, 20, first.DispatchedDate.Day())
	require.Equal(t, "Acme", first.PartyName)

	second := res.Valid[1]
	require.Equal(t, "1002", second.InvoiceNo)
	require.Equal(t, fixedNow, second.InvoiceDate)
	require.Nil(t, second.DispatchedDate)

	require.Len(t, res.Rejected, 1)
	require.Equal(t, 4, res.Rejected[0].RowNumber)
	require.Equal(t, "Validation error: Invoice No is required", res.Rejected[0].Reason)
}
