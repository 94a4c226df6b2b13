package uploads

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/logistics-billing/internal/ingest"
	"github.com/odyssey-erp/logistics-billing/internal/platform/httpx"
)

// FileKind identifies which workbook layout an upload carries.
type FileKind string

const (
	KindInbound  FileKind = "INBOUND"
	KindOutbound FileKind = "OUTBOUND"
)

// ParseKind accepts inbound/outbound in any case.
func ParseKind(raw string) (FileKind, error) {
	switch FileKind(strings.ToUpper(strings.TrimSpace(raw))) {
	case KindInbound:
		return KindInbound, nil
	case KindOutbound:
		return KindOutbound, nil
	}
	return "", fmt.Errorf("%w: unknown file kind %q", httpx.ErrValidation, raw)
}

// Status is the outcome recorded for an upload attempt.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

// UploadLog records one upload attempt.
type UploadLog struct {
	ID            string    `json:"id"`
	FileName      string    `json:"fileName"`
	FileType      FileKind  `json:"fileType"`
	Checksum      string    `json:"checksum"`
	Status        Status    `json:"status"`
	RowCount      int       `json:"rowCount"`
	RejectedCount int       `json:"rejectedCount"`
	Message       string    `json:"message,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// RejectedRow is a spreadsheet row that failed coercion or validation.
type RejectedRow struct {
	UploadID  string         `json:"uploadId"`
	FileName  string         `json:"fileName,omitempty"`
	RowNumber int            `json:"rowNumber"`
	Data      map[string]any `json:"data"`
	Reason    string         `json:"reason"`
	CreatedAt time.Time      `json:"createdAt"`
}

// IngestRequest is a raw workbook submitted for loading.
type IngestRequest struct {
	Kind     FileKind
	FileName string
	Data     []byte
	Replace  bool
}

// IngestResult summarises a successful upload.
type IngestResult struct {
	UploadID      string   `json:"uploadId"`
	FileType      FileKind `json:"fileType"`
	Checksum      string   `json:"checksum"`
	RowCount      int      `json:"rowCount"`
	RejectedCount int      `json:"rejectedCount"`
	SkippedCount  int      `json:"skippedCount"`
	Replaced      bool     `json:"replaced"`
}

// ListFilter narrows upload history listings.
type ListFilter struct {
	FileType FileKind
	Status   Status
	Limit    int
	Offset   int
}

// RejectedFilter narrows rejected row listings. Empty fields do not filter.
type RejectedFilter struct {
	UploadID string
	FileType FileKind
	Limit    int
	Offset   int
}

// Page is one window of a listing plus the unpaged total.
type Page[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

const (
	defaultLimit = 50
	maxLimit     = 500
)

func clampWindow(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// DeleteScope selects which facts a bulk delete removes.
type DeleteScope string

const (
	ScopeInbound  DeleteScope = "inbound"
	ScopeOutbound DeleteScope = "outbound"
	ScopeAll      DeleteScope = "all"
)

// ParseScope validates a delete scope.
func ParseScope(raw string) (DeleteScope, error) {
	switch DeleteScope(strings.ToLower(strings.TrimSpace(raw))) {
	case ScopeInbound:
		return ScopeInbound, nil
	case ScopeOutbound:
		return ScopeOutbound, nil
	case ScopeAll:
		return ScopeAll, nil
	}
	return "", fmt.Errorf("%w: type must be inbound, outbound or all", httpx.ErrValidation)
}

// DeleteResult reports how many facts a bulk delete removed.
type DeleteResult struct {
	Inbound  int `json:"inboundDeleted"`
	Outbound int `json:"outboundDeleted"`
}

// ErrUploadNotFound is returned for unknown upload ids.
var ErrUploadNotFound = fmt.Errorf("%w: upload", httpx.ErrNotFound)

// DuplicateError reports a workbook whose checksum already loaded successfully.
type DuplicateError struct {
	ExistingID string
	FileName   string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("file already uploaded as %s (%s)", e.ExistingID, e.FileName)
}

func (e *DuplicateError) Unwrap() error { return httpx.ErrDuplicate }

// FileError wraps a structural problem that makes the whole workbook unusable.
type FileError struct {
	Err error
}

func (e *FileError) Error() string { return e.Err.Error() }

func (e *FileError) Unwrap() []error { return []error{e.Err, httpx.ErrUnprocessable} }

// IsDuplicate reports whether err is a DuplicateError.
func IsDuplicate(err error) (*DuplicateError, bool) {
	var dup *DuplicateError
	if errors.As(err, &dup) {
		return dup, true
	}
	return nil, false
}

// StoredInbound is an inbound fact together with the upload that owns it.
type StoredInbound struct {
	UploadID string
	Row      ingest.InboundRow
}

// StoredOutbound is an outbound fact together with the upload that owns it.
type StoredOutbound struct {
	UploadID string
	Row      ingest.OutboundRow
}

// StoredRejected is a rejected row together with the upload that owns it.
type StoredRejected struct {
	UploadID string
	Row      ingest.Rejected
}

// Displaced holds rows an ingest transaction removed on behalf of other
// uploads. It is put back when the summaries cannot be refreshed.
type Displaced struct {
	Logs     []UploadLog
	Inbound  []StoredInbound
	Outbound []StoredOutbound
	Rejected []StoredRejected
}

func (d *Displaced) add(o Displaced) {
	d.Logs = append(d.Logs, o.Logs...)
	d.Inbound = append(d.Inbound, o.Inbound...)
	d.Outbound = append(d.Outbound, o.Outbound...)
	d.Rejected = append(d.Rejected, o.Rejected...)
}

// Empty reports whether nothing was displaced.
func (d Displaced) Empty() bool {
	return len(d.Logs)+len(d.Inbound)+len(d.Outbound)+len(d.Rejected) == 0
}

// Dates lists the fact dates of the displaced rows.
func (d Displaced) Dates() []time.Time {
	dates := make([]time.Time, 0, len(d.Inbound)+len(d.Outbound))
	for _, f := range d.Inbound {
		dates = append(dates, f.Row.ReceivedDate)
	}
	for _, f := range d.Outbound {
		dates = append(dates, f.Row.InvoiceDate)
	}
	return dates
}
