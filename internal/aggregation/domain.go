package aggregation

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/odyssey-erp/logistics-billing/internal/platform/httpx"
)

// ErrRefreshBusy signals another process holds the aggregation lock.
var ErrRefreshBusy = fmt.Errorf("%w: aggregation refresh already running", httpx.ErrBusy)

// InvoiceCountMode selects how outbound invoices are counted per day.
type InvoiceCountMode string

const (
	// CountRows counts every outbound fact.
	CountRows InvoiceCountMode = "rows"
	// CountDistinctInvoices counts distinct non-blank invoice numbers.
	CountDistinctInvoices InvoiceCountMode = "distinct"
)

// ParseInvoiceCountMode validates a configured counting mode.
func ParseInvoiceCountMode(raw string) (InvoiceCountMode, error) {
	switch InvoiceCountMode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", CountRows:
		return CountRows, nil
	case CountDistinctInvoices:
		return CountDistinctInvoices, nil
	}
	return "", fmt.Errorf("aggregation: unknown invoice count mode %q", raw)
}

// DailySummary is the per-day rollup of facts. Day is midnight UTC.
type DailySummary struct {
	Day              time.Time `json:"day"`
	OutboundInvoices int       `json:"outboundInvoices"`
	OutboundQty      float64   `json:"outboundQty"`
	OutboundBoxes    float64   `json:"outboundBoxes"`
	GrossSale        float64   `json:"grossSale"`
	InboundQty       float64   `json:"inboundQty"`
	InboundBoxes     float64   `json:"inboundBoxes"`
}

// MonthlyRevenue is the per-month revenue snapshot. Month is the first day, UTC.
type MonthlyRevenue struct {
	Month           time.Time `json:"month"`
	GrossSale       float64   `json:"grossSale"`
	RevenueMarginal float64   `json:"revenueMarginal"`
	RevenueFlat     float64   `json:"revenueFlat"`
	LastRecalcAt    time.Time `json:"lastRecalcAt"`
}

// OutboundLine is the slice of an outbound fact that feeds summaries.
type OutboundLine struct {
	InvoiceNo  string
	InvoiceQty float64
	Boxes      float64
	GrossTotal float64
}

// InboundLine is the slice of an inbound fact that feeds summaries.
type InboundLine struct {
	InvoiceQty float64
	Boxes      float64
}

// DayStart truncates t to midnight UTC.
func DayStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// MonthStart returns the first instant of t's month in UTC.
func MonthStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// AffectedDates normalizes instants to distinct UTC days, ascending.
func AffectedDates(instants []time.Time) []time.Time {
	return distinct(instants, DayStart)
}

// AffectedMonths normalizes instants to distinct month starts, ascending.
func AffectedMonths(instants []time.Time) []time.Time {
	return distinct(instants, MonthStart)
}

func distinct(instants []time.Time, norm func(time.Time) time.Time) []time.Time {
	seen := make(map[time.Time]struct{}, len(instants))
	out := make([]time.Time, 0, len(instants))
	for _, t := range instants {
		if t.IsZero() {
			continue
		}
		k := norm(t)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// Summarize folds one day's facts into a DailySummary.
func Summarize(day time.Time, outbound []OutboundLine, inbound []InboundLine, mode InvoiceCountMode) DailySummary {
	s := DailySummary{Day: DayStart(day)}
	invoices := make(map[string]struct{})
	for _, o := range outbound {
		s.OutboundQty += o.InvoiceQty
		s.OutboundBoxes += o.Boxes
		s.GrossSale += o.GrossTotal
		if no := strings.TrimSpace(o.InvoiceNo); no != "" {
			invoices[no] = struct{}{}
		}
	}
	if mode == CountDistinctInvoices {
		s.OutboundInvoices = len(invoices)
	} else {
		s.OutboundInvoices = len(outbound)
	}
	for _, in := range inbound {
		s.InboundQty += in.InvoiceQty
		s.InboundBoxes += in.Boxes
	}
	return s
}
