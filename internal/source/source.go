// Package source defines the boundary to the external lead store: the raw
// row shape, the transport contract, and the retrying adapter every caller
// goes through. The external store is authoritative for lead data; this
// package never caches.
package source

import (
	"context"
	"errors"
	"time"
)

// ErrSourceUnavailable is returned once all retry attempts against the
// external store are exhausted. A poll cycle that sees this error must be
// abandoned wholesale.
var ErrSourceUnavailable = errors.New("external source unavailable")

// Column names of the external row store.
const (
	FieldID                = "ID"
	FieldName              = "Name"
	FieldPhone             = "Phone"
	FieldSeller            = "Seller"
	FieldSource            = "Source"
	FieldCreatedAt         = "Created_At"
	FieldStatus            = "Status"
	FieldCall1Time         = "Call_1_Time"
	FieldCall2Time         = "Call_2_Time"
	FieldCall3Time         = "Call_3_Time"
	FieldNextFollowup      = "Next_Followup"
	FieldFirstClassDate    = "First_Class_Date"
	FieldFirstClassConfirm = "First_Class_Confirm"
	FieldComment           = "Comment"
	FieldLastUpdate        = "Last_Update"
)

// Columns lists every tracked column in sheet order.
var Columns = []string{
	FieldID, FieldName, FieldPhone, FieldSeller, FieldSource,
	FieldCreatedAt, FieldStatus, FieldCall1Time, FieldCall2Time,
	FieldCall3Time, FieldNextFollowup, FieldFirstClassDate,
	FieldFirstClassConfirm, FieldComment, FieldLastUpdate,
}

// RowData is one untyped row as read off the wire, values verbatim.
type RowData struct {
	ID                string
	Name              string
	Phone             string
	Seller            string
	Source            string
	CreatedAt         string
	Status            string
	Call1Time         string
	Call2Time         string
	Call3Time         string
	NextFollowup      string
	FirstClassDate    string
	FirstClassConfirm string
	Comment           string
	LastUpdate        string
}

// RawRow is a validated, normalized row ready for reconciliation.
type RawRow struct {
	ID                  string
	Name                string
	Phone               string
	Seller              string
	Source              string
	Status              string
	CreatedAt           *time.Time
	Call1At             *time.Time
	Call2At             *time.Time
	Call3At             *time.Time
	NextFollowupAt      *time.Time
	FirstClassAt        *time.Time
	FirstClassConfirmed bool
	Comment             string
	LastUpdate          *time.Time
}

// Transport reads and writes the external row store. Implementations do a
// single attempt; retry policy lives in the Adapter.
type Transport interface {
	// FetchAll returns every data row of the sheet, header excluded.
	FetchAll(ctx context.Context) ([]RowData, error)
	// WriteField sets a single cell of the row identified by the ID column
	// and stamps the Last_Update column.
	WriteField(ctx context.Context, rowID, field, value string) error
}
