package source

import (
	"fmt"
	"strings"
	"time"

	"leadflow_backend/platform/phone"
	"leadflow_backend/platform/validator"
)

// timeLayouts are the accepted timestamp spellings, most common first.
// The sheet is hand-edited, so date-only and minute-precision values occur.
var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	time.RFC3339,
	"2006-01-02",
	"02.01.2006 15:04",
	"02.01.2006",
}

// TimeLayout is the canonical format used when writing timestamps back.
const TimeLayout = "2006-01-02 15:04:05"

// rowInput carries the validation tags for the boundary check.
type rowInput struct {
	ID   string `validate:"required,max=64"`
	Name string `validate:"max=256"`
}

// Normalizer turns untyped RowData into validated RawRow values.
type Normalizer struct {
	val *validator.Validator
}

func NewNormalizer(val *validator.Validator) *Normalizer {
	return &Normalizer{val: val}
}

// Normalize validates and converts one row. Rows that fail validation are
// rejected here and never reach the reconciler.
func (n *Normalizer) Normalize(row RowData) (RawRow, error) {
	id := strings.TrimSpace(row.ID)
	if err := n.val.Struct(rowInput{ID: id, Name: strings.TrimSpace(row.Name)}); err != nil {
		return RawRow{}, fmt.Errorf("row validation: %w", err)
	}

	out := RawRow{
		ID:                  id,
		Name:                strings.TrimSpace(row.Name),
		Phone:               phone.NormalizeE164(row.Phone),
		Seller:              strings.TrimSpace(row.Seller),
		Source:              strings.TrimSpace(row.Source),
		Status:              strings.TrimSpace(row.Status),
		Comment:             strings.TrimSpace(row.Comment),
		FirstClassConfirmed: parseConfirm(row.FirstClassConfirm),
	}

	var err error
	if out.CreatedAt, err = parseOptionalTime(FieldCreatedAt, row.CreatedAt); err != nil {
		return RawRow{}, err
	}
	if out.Call1At, err = parseOptionalTime(FieldCall1Time, row.Call1Time); err != nil {
		return RawRow{}, err
	}
	if out.Call2At, err = parseOptionalTime(FieldCall2Time, row.Call2Time); err != nil {
		return RawRow{}, err
	}
	if out.Call3At, err = parseOptionalTime(FieldCall3Time, row.Call3Time); err != nil {
		return RawRow{}, err
	}
	if out.NextFollowupAt, err = parseOptionalTime(FieldNextFollowup, row.NextFollowup); err != nil {
		return RawRow{}, err
	}
	if out.FirstClassAt, err = parseOptionalTime(FieldFirstClassDate, row.FirstClassDate); err != nil {
		return RawRow{}, err
	}
	if out.LastUpdate, err = parseOptionalTime(FieldLastUpdate, row.LastUpdate); err != nil {
		return RawRow{}, err
	}

	return out, nil
}

func parseOptionalTime(field, value string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%s: unparseable timestamp %q", field, trimmed)
}

func parseConfirm(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "yes", "true", "1", "confirmed", "ha", "да":
		return true
	default:
		return false
	}
}

// FormatTime renders a timestamp in the sheet's canonical layout, UTC.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}
