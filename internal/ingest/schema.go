package ingest

import (
	"errors"
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
)

// InboundRow is a validated warehouse receipt line.
type InboundRow struct {
	ReceivedDate time.Time `json:"receivedDate" validate:"required" label:"Received Date"`
	InvoiceNo    string    `json:"invoiceNo,omitempty"`
	InvoiceValue float64   `json:"invoiceValue" validate:"gte=0" label:"Invoice Value"`
	PartyName    string    `json:"partyName,omitempty"`
	InvoiceQty   float64   `json:"invoiceQty" validate:"gte=0" label:"Invoice Qty"`
	Boxes        float64   `json:"boxes" validate:"gte=0" label:"Boxes"`
	Type         string    `json:"type,omitempty"`
	ArticleNo    string    `json:"articleNo,omitempty"`
}

// OutboundRow is a validated dispatch/invoice line.
type OutboundRow struct {
	InvoiceNo      string     `json:"invoiceNo" validate:"required" label:"Invoice No"`
	InvoiceDate    time.Time  `json:"invoiceDate" validate:"required" label:"Invoice Date"`
	DispatchedDate *time.Time `json:"dispatchedDate,omitempty"`
	PartyName      string     `json:"partyName,omitempty"`
	InvoiceQty     float64    `json:"invoiceQty" validate:"gte=0" label:"Invoice Qty"`
	Boxes          float64    `json:"boxes" validate:"gte=0" label:"Boxes"`
	GrossTotal     float64    `json:"grossTotal" validate:"gte=0" label:"Gross Total"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if label := f.Tag.Get("label"); label != "" {
			return label
		}
		return f.Name
	})
	return v
}

// violations renders validator failures as human-readable messages.
func violations(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			out = append(out, fe.Field()+" is required")
		case "gte":
			if fe.Param() == "0" {
				out = append(out, fe.Field()+" must be non-negative")
				continue
			}
			out = append(out, fe.Field()+" must be at least "+fe.Param())
		default:
			out = append(out, fe.Field()+" is invalid")
		}
	}
	return out
}
