package sync

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"leadflow_backend/internal/leads/domain"
	leadrepo "leadflow_backend/internal/leads/repository"
	sellerrepo "leadflow_backend/internal/sellers/repository"
	"leadflow_backend/internal/source"
	"leadflow_backend/platform/phone"
)

func ts(t *testing.T, value string) *time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02 15:04:05", value)
	if err != nil {
		t.Fatalf("parse time %q: %v", value, err)
	}
	return &parsed
}

func baseRow(t *testing.T) source.RawRow {
	return source.RawRow{
		ID:        "42",
		Name:      "Anna K",
		Phone:     "+998901234567",
		Seller:    "Bek",
		Source:    "instagram",
		Status:    "Call #1 Needed",
		CreatedAt: ts(t, "2026-03-01 10:00:00"),
	}
}

func storedLead(t *testing.T) leadrepo.Lead {
	row := baseRow(t)
	return leadrepo.Lead{
		ID:         uuid.New(),
		ExternalID: row.ID,
		Name:       row.Name,
		Phone:      phone.NormalizeE164(row.Phone),
		SellerName: row.Seller,
		Source:     row.Source,
		StatusText: row.Status,
		CreatedAt:  row.CreatedAt,
	}
}

func TestClassifyNew(t *testing.T) {
	if got := classify(baseRow(t), leadrepo.Lead{}, false); got != ChangeNew {
		t.Fatalf("classify = %s, want new", got)
	}
}

func TestClassifyUnchanged(t *testing.T) {
	if got := classify(baseRow(t), storedLead(t), true); got != ChangeUnchanged {
		t.Fatalf("classify = %s, want unchanged", got)
	}
}

func TestClassifyFieldChange(t *testing.T) {
	row := baseRow(t)
	row.Comment = "called, no answer"
	if got := classify(row, storedLead(t), true); got != ChangeChanged {
		t.Fatalf("comment edit: classify = %s, want changed", got)
	}

	row = baseRow(t)
	row.Call1At = ts(t, "2026-03-01 11:30:00")
	if got := classify(row, storedLead(t), true); got != ChangeChanged {
		t.Fatalf("timestamp edit: classify = %s, want changed", got)
	}
}

func TestClassifyStatusAliasIsNotAChange(t *testing.T) {
	row := baseRow(t)
	row.Status = "call 1 needed"
	if got := classify(row, storedLead(t), true); got != ChangeUnchanged {
		t.Fatalf("alias spelling: classify = %s, want unchanged", got)
	}
}

func TestClassifyEmptyExternalStatusKeepsLocal(t *testing.T) {
	// The entry transition writes a status locally before the sheet shows
	// it. The still-blank sheet cell must not read as a change back.
	row := baseRow(t)
	row.Status = ""
	if got := classify(row, storedLead(t), true); got != ChangeUnchanged {
		t.Fatalf("blank external status: classify = %s, want unchanged", got)
	}
}

func TestClassifyStatusChange(t *testing.T) {
	row := baseRow(t)
	row.Status = "Call #1 Done"
	if got := classify(row, storedLead(t), true); got != ChangeChanged {
		t.Fatalf("classify = %s, want changed", got)
	}
}

func TestBuildParamsSellerMatching(t *testing.T) {
	sellerID := uuid.New()
	sellers := map[string]sellerrepo.Seller{
		"bek": {ID: sellerID, Name: "Bek", NameKey: "bek", Active: true},
	}
	r := &Reconciler{}

	row := baseRow(t)
	row.Seller = "  BEK "
	params := r.buildParams(row, leadrepo.Lead{}, false, sellers)
	if params.SellerID == nil || *params.SellerID != sellerID {
		t.Fatal("case-insensitive trimmed seller name must match")
	}

	row.Seller = "Unknown Person"
	params = r.buildParams(row, leadrepo.Lead{}, false, sellers)
	if params.SellerID != nil {
		t.Fatal("unmatched seller must leave the reference nil")
	}
	if params.SellerName != "Unknown Person" {
		t.Fatal("unmatched seller name must still be kept on the lead")
	}
}

func TestBuildParamsBlankStatusKeepsPrior(t *testing.T) {
	r := &Reconciler{}
	prior := storedLead(t)
	row := baseRow(t)
	row.Status = ""

	params := r.buildParams(row, prior, true, nil)
	if params.StatusText != prior.StatusText {
		t.Fatalf("status = %q, want prior %q", params.StatusText, prior.StatusText)
	}
}

func TestLeadViewMapping(t *testing.T) {
	lead := storedLead(t)
	lead.StatusText = "completed"
	lead.Call1At = ts(t, "2026-03-01 11:30:00")
	lead.FirstClassConfirmed = true

	view := leadView(lead)
	if view.Status != domain.StatusSold {
		t.Fatalf("status = %s, want Sold via alias", view.Status)
	}
	if view.Call1At == nil || !view.Call1At.Equal(*lead.Call1At) {
		t.Fatal("call1 timestamp lost in projection")
	}
	if !view.FirstClassConfirmed {
		t.Fatal("confirmation flag lost in projection")
	}
}
