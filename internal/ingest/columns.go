package ingest

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// NormalizeColumnName folds case, trims and joins whitespace runs with "_".
func NormalizeColumnName(name string) string {
	return whitespaceRun.ReplaceAllString(fold(strings.TrimSpace(name)), "_")
}

func fold(s string) string {
	return cases.Fold().String(s)
}

// Field is a canonical column with its accepted header spellings.
type Field struct {
	Name     string
	Aliases  []string
	Required bool
}

// Layout describes where a record type lives inside a workbook.
type Layout struct {
	Sheet string
	// HeaderRow is the 1-based row holding column names; data starts on the next row.
	HeaderRow int
	Fields    []Field
}

var inboundLayout = Layout{
	Sheet:     "PIPO & BIBO Inward",
	HeaderRow: 1,
	Fields: []Field{
		{Name: "received_date", Required: true, Aliases: []string{
			"received date", "received_date", "receiveddate", "inward date", "inwarddate",
			"grn_date", "grn date", "grndate", "date", "received",
		}},
		{Name: "invoice_no", Required: true, Aliases: []string{
			"stn_no./invoice_no.", "stn_no./invoice_no", "stn_no/invoice_no", "stn_no_invoice_no", "stn_no",
			"invoice_no", "invoice no", "invoice_no.", "invoice number", "invoice_number", "stn_invoice_no",
			"stn no./invoice no.", "stn no./invoice no", "stn no/invoice no", "stn no invoice no",
		}},
		{Name: "invoice_value", Required: true, Aliases: []string{
			"invoice_value", "invoice value", "invoice_value_(rs)", "invoice_value_in_inr", "value",
			"total_value", "total value", "invoice_total_value", "invoice total value",
		}},
		{Name: "invoice_qty", Required: true, Aliases: []string{
			"invoice_qty", "invoice qty", "invoiceqty", "quantity", "qty",
			"invoice_quantity", "invoice quantity", "invoice", "invoices",
		}},
		{Name: "boxes", Required: true, Aliases: []string{
			"boxes", "no_of_boxes", "no of boxes", "noofboxes", "box_count", "no_of_box", "no of box",
			"bags/box", "bags_box", "bags box", "bags", "bag",
		}},
		{Name: "party_name", Aliases: []string{"party_name", "party name", "partyname", "customer", "client", "supplier"}},
		{Name: "type", Aliases: []string{"type", "category", "item_type", "item type"}},
		{Name: "article_no", Aliases: []string{
			"article_no", "article no", "articleno", "article_number", "article number", "sku", "item_code",
		}},
	},
}

var outboundLayout = Layout{
	Sheet:     "Outward MIS",
	HeaderRow: 2,
	Fields: []Field{
		{Name: "invoice_no", Required: true, Aliases: []string{"Invoice No."}},
		{Name: "invoice_qty", Required: true, Aliases: []string{"Invoice Qty"}},
		{Name: "boxes", Required: true, Aliases: []string{"No. Of Box"}},
		{Name: "gross_total", Required: true, Aliases: []string{"INVOICE GROSS TOTAL VALUE"}},
		{Name: "invoice_date", Aliases: []string{"Invoice Date"}},
		{Name: "dispatched_date", Aliases: []string{
			"dispatched_date", "dispatched date", "dispatcheddate", "dispatch_date", "dispatch date", "dispatch",
		}},
		{Name: "party_name", Aliases: []string{"party_name", "party name", "partyname", "customer", "client", "party"}},
	},
}

// resolveColumns maps canonical field names to header indexes. Aliases are
// tried in declaration order; the first matching header wins.
func resolveColumns(headers []string, fields []Field) (map[string]int, error) {
	index := make(map[string]int, len(headers))
	for i, h := range headers {
		key := NormalizeColumnName(h)
		if key == "" {
			continue
		}
		if _, seen := index[key]; !seen {
			index[key] = i
		}
	}
	out := make(map[string]int, len(fields))
	var missing []string
	for _, f := range fields {
		found := false
		for _, alias := range f.Aliases {
			if i, ok := index[NormalizeColumnName(alias)]; ok {
				out[f.Name] = i
				found = true
				break
			}
		}
		if !found && f.Required {
			missing = append(missing, f.Name)
		}
	}
	if len(missing) > 0 {
		return nil, &StructuralError{
			Reason:    "required column not found: " + strings.Join(missing, ", "),
			Available: nonEmpty(headers),
		}
	}
	return out, nil
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}
