package ingest

import (
	"bytes"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cast"
	"github.com/xuri/excelize/v2"
)

// Rejected is a non-blank data row that failed coercion or validation.
type Rejected struct {
	RowNumber int            `json:"rowNumber"`
	Data      map[string]any `json:"data"`
	Reason    string         `json:"reason"`
}

// Result partitions the data rows of one sheet. DataRows always equals
// len(Valid) + len(Rejected) + Skipped.
type Result[T any] struct {
	Columns  []string   `json:"columns"`
	Valid    []T        `json:"valid"`
	Rejected []Rejected `json:"rejected"`
	Skipped  int        `json:"skipped"`
	DataRows int        `json:"dataRows"`
}

// Parser turns xlsx workbooks into validated rows.
type Parser struct {
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
}

// NewParser constructs a Parser.
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger, validate: newValidator(), now: time.Now}
}

// WithNow overrides the clock used for missing dates.
func (p *Parser) WithNow(fn func() time.Time) {
	if fn != nil {
		p.now = fn
	}
}

// ParseInbound reads the "PIPO & BIBO Inward" sheet.
func (p *Parser) ParseInbound(data []byte) (Result[InboundRow], error) {
	return parse(p, data, inboundLayout, p.mapInbound)
}

// ParseOutbound reads the "Outward MIS" sheet. Row 1 holds totals and is ignored.
func (p *Parser) ParseOutbound(data []byte) (Result[OutboundRow], error) {
	return parse(p, data, outboundLayout, p.mapOutbound)
}

type sheetRow struct {
	number int
	values []any
	cols   map[string]int
}

func (r sheetRow) cell(name string) any {
	idx, ok := r.cols[name]
	if !ok || idx >= len(r.values) {
		return nil
	}
	return r.values[idx]
}

func (r sheetRow) text(name string) string {
	v := r.cell(name)
	if v == nil {
		return ""
	}
	return strings.TrimSpace(cast.ToString(v))
}

type rowMapper[T any] func(row sheetRow) (T, []string)

func parse[T any](p *Parser, data []byte, layout Layout, mapRow rowMapper[T]) (Result[T], error) {
	var res Result[T]

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return res, &StructuralError{Reason: "file is not a readable xlsx workbook: " + err.Error()}
	}
	defer func() { _ = f.Close() }()

	sheet, ok := findSheet(f.GetSheetList(), layout.Sheet)
	if !ok {
		return res, &StructuralError{
			Reason:    fmt.Sprintf("could not find %q sheet in workbook", layout.Sheet),
			Available: f.GetSheetList(),
		}
	}
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return res, &StructuralError{Reason: fmt.Sprintf("read sheet %q: %v", sheet, err)}
	}
	if len(rows) <= layout.HeaderRow {
		return res, &StructuralError{Reason: fmt.Sprintf("sheet %q must contain a header on row %d and at least one data row", sheet, layout.HeaderRow)}
	}

	headers := make([]string, len(rows[layout.HeaderRow-1]))
	for i, h := range rows[layout.HeaderRow-1] {
		headers[i] = strings.TrimSpace(h)
	}
	cols, err := resolveColumns(headers, layout.Fields)
	if err != nil {
		return res, err
	}
	res.Columns = nonEmpty(headers)

	for i := layout.HeaderRow; i < len(rows); i++ {
		number := i + 1
		res.DataRows++
		values := make([]any, len(rows[i]))
		raw := make(map[string]any, len(headers))
		for c, cellRaw := range rows[i] {
			values[c] = typedCell(f, sheet, c+1, number, cellRaw)
		}
		for c, h := range headers {
			if h == "" {
				continue
			}
			if c < len(values) {
				raw[h] = values[c]
			} else {
				raw[h] = nil
			}
		}
		if IsBlankRow(raw) {
			res.Skipped++
			continue
		}

		row, problems := mapRow(sheetRow{number: number, values: values, cols: cols})
		if len(problems) == 0 {
			if err := p.validate.Struct(row); err != nil {
				problems = violations(err)
			}
		}
		if len(problems) > 0 {
			res.Rejected = append(res.Rejected, Rejected{
				RowNumber: number,
				Data:      raw,
				Reason:    "Validation error: " + strings.Join(problems, ", "),
			})
			continue
		}
		res.Valid = append(res.Valid, row)
	}

	if len(res.Valid) == 0 && len(res.Rejected) == 0 {
		return res, &StructuralError{Reason: fmt.Sprintf("no data rows found in sheet %q", sheet)}
	}
	return res, nil
}

func findSheet(sheets []string, want string) (string, bool) {
	target := fold(strings.TrimSpace(want))
	for _, name := range sheets {
		if fold(strings.TrimSpace(name)) == target {
			return name, true
		}
	}
	return "", false
}

// typedCell restores the native type of a raw cell value: numbers become
// float64 (dates arrive as serials), booleans bool, everything else string.
func typedCell(f *excelize.File, sheet string, col, row int, raw string) any {
	if raw == "" {
		return nil
	}
	axis, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return raw
	}
	ctype, err := f.GetCellType(sheet, axis)
	if err != nil {
		return raw
	}
	switch ctype {
	case excelize.CellTypeBool:
		return raw == "1" || strings.EqualFold(raw, "true")
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString, excelize.CellTypeError,
		excelize.CellTypeFormula, excelize.CellTypeDate:
		return raw
	}
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		return n
	}
	return raw
}

func (p *Parser) date(row sheetRow, field, label string, problems *[]string) time.Time {
	t, err := CoerceDate(row.cell(field))
	switch {
	case err == nil:
		return t
	case NoValue(err):
		return p.now().UTC()
	}
	p.logger.Warn("unreadable date cell", slog.Int("row", row.number), slog.String("column", field), slog.Any("error", err))
	*problems = append(*problems, label+": "+err.Error())
	return time.Time{}
}

func (p *Parser) number(row sheetRow, field, label string, problems *[]string) float64 {
	n, err := CoerceNumber(row.cell(field))
	switch {
	case err == nil:
		return n
	case NoValue(err):
		return 0
	}
	*problems = append(*problems, label+": "+err.Error())
	return 0
}

func (p *Parser) mapInbound(row sheetRow) (InboundRow, []string) {
	var problems []string
	out := InboundRow{
		ReceivedDate: p.date(row, "received_date", "Received Date", &problems),
		InvoiceNo:    row.text("invoice_no"),
		InvoiceValue: p.number(row, "invoice_value", "Invoice Value", &problems),
		PartyName:    row.text("party_name"),
		InvoiceQty:   p.number(row, "invoice_qty", "Invoice Qty", &problems),
		Boxes:        p.number(row, "boxes", "Boxes", &problems),
		Type:         row.text("type"),
		ArticleNo:    row.text("article_no"),
	}
	return out, problems
}

func (p *Parser) mapOutbound(row sheetRow) (OutboundRow, []string) {
	var problems []string
	out := OutboundRow{
		InvoiceNo:   row.text("invoice_no"),
		InvoiceDate: p.date(row, "invoice_date", "Invoice Date", &problems),
		PartyName:   row.text("party_name"),
		InvoiceQty:  p.number(row, "invoice_qty", "Invoice Qty", &problems),
		Boxes:       p.number(row, "boxes", "Boxes", &problems),
		GrossTotal:  p.number(row, "gross_total", "Gross Total", &problems),
	}
	if t, err := CoerceDate(row.cell("dispatched_date")); err == nil {
		out.DispatchedDate = &t
	} else if !NoValue(err) {
		p.logger.Warn("ignoring unreadable dispatch date", slog.Int("row", row.number), slog.Any("error", err))
	}
	return out, problems
}
