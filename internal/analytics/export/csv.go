package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/odyssey-erp/logistics-billing/internal/analytics"
)

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func flush(writer *csv.Writer) error {
	writer.Flush()
	return writer.Error()
}

// WriteKPICSV serialises the outbound and inbound KPI cards with their deltas.
func WriteKPICSV(w io.Writer, summary analytics.KPISummary, inbound analytics.InboundKPI, period string) error {
	writer := csv.NewWriter(w)
	records := [][]string{
		{"Metric", "Value", "Change", "Change (%)"},
		{"Period", period, "", ""},
		{"Revenue Mode", string(summary.Mode), "", ""},
		deltaRow("Gross Sale", summary.GrossSale, summary.Delta.GrossSale),
		deltaRow("Revenue", summary.Revenue, summary.Delta.Revenue),
		deltaRow("Outbound Invoices", float64(summary.InvoiceCount), summary.Delta.InvoiceCount),
		deltaRow("Outbound Qty", summary.InvoiceQty, summary.Delta.InvoiceQty),
		deltaRow("Outbound Boxes", summary.Boxes, summary.Delta.Boxes),
		{"Average Ticket", formatFloat(summary.AvgTicket), "", ""},
		{"Gross Per Unit", formatFloat(summary.GrossPerUnit), "", ""},
		deltaRow("Inbound Invoices", float64(inbound.InvoiceCount), inbound.Delta.InvoiceCount),
		deltaRow("Inbound Value", inbound.InvoiceValue, inbound.Delta.InvoiceValue),
		deltaRow("Inbound Qty", inbound.InvoiceQty, inbound.Delta.InvoiceQty),
		deltaRow("Inbound Boxes", inbound.Boxes, inbound.Delta.Boxes),
	}
	if err := writer.WriteAll(records); err != nil {
		return err
	}
	return flush(writer)
}

func deltaRow(label string, value float64, d analytics.Delta) []string {
	return []string{label, formatFloat(value), formatFloat(d.Absolute), formatFloat(d.Percentage)}
}

// WriteDailyCSV emits the daily series.
func WriteDailyCSV(w io.Writer, points []analytics.DailyPoint) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"Date", "Gross Sale", "Revenue", "Invoices", "Qty", "Boxes", "Inbound Qty", "Inbound Boxes"}); err != nil {
		return err
	}
	for _, p := range points {
		if err := writer.Write([]string{
			p.Date,
			formatFloat(p.GrossSale),
			formatFloat(p.Revenue),
			strconv.Itoa(p.InvoiceCount),
			formatFloat(p.InvoiceQty),
			formatFloat(p.Boxes),
			formatFloat(p.InboundQty),
			formatFloat(p.InboundBoxes),
		}); err != nil {
			return err
		}
	}
	return flush(writer)
}

// WriteMonthlyCSV emits the monthly revenue series.
func WriteMonthlyCSV(w io.Writer, points []analytics.MonthlyPoint) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"Month", "Gross Sale", "Revenue"}); err != nil {
		return err
	}
	for _, p := range points {
		if err := writer.Write([]string{p.Label, formatFloat(p.GrossSale), formatFloat(p.Revenue)}); err != nil {
			return err
		}
	}
	return flush(writer)
}
