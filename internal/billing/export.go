package billing

import (
	"encoding/csv"
	"io"
)

// WriteCSV emits the invoice header figures followed by the slab breakdown.
func WriteCSV(w io.Writer, data BillingData) error {
	writer := csv.NewWriter(w)
	records := [][]string{
		{"Month", data.Month},
		{"Gross Sale", data.GrossSale.StringFixed(2)},
		{"Minimum Guarantee", data.MinGuarantee.StringFixed(2)},
		{"Billing Amount", data.BillingAmount.StringFixed(2)},
		{},
		{"Range", "Rate (%)", "Amount"},
	}
	for _, s := range data.SlabBreakdown {
		records = append(records, []string{s.Range, s.Rate.String(), s.Amount.StringFixed(2)})
	}
	records = append(records, []string{"Total", "", data.TotalRevenue.StringFixed(2)})
	if err := writer.WriteAll(records); err != nil {
		return err
	}
	return writer.Error()
}
