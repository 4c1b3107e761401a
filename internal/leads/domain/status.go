package domain

import "strings"

// Status is a lead's lifecycle stage. The canonical text mirrors what the
// sales sheet shows; ParseStatus folds the hand-typed variants onto it.
type Status string

const (
	StatusNew                 Status = "New Lead"
	StatusCall1Needed         Status = "Call #1 Needed"
	StatusCall1Done           Status = "Call #1 Done"
	StatusCall2Needed         Status = "Call #2 Needed"
	StatusCall2Done           Status = "Call #2 Done"
	StatusCall3Needed         Status = "Call #3 Needed"
	StatusCall3Done           Status = "Call #3 Done"
	StatusFirstClassScheduled Status = "First Class Scheduled"
	StatusFirstClassConfirmed Status = "First Class Confirmed"
	StatusDidNotAttend        Status = "Did Not Attend First Class"
	StatusSold                Status = "Sold"
	StatusLost                Status = "Lost"
)

// statusAliases maps normalized sheet text to the canonical status. The
// sheet is edited by hand, so the historical spellings stay accepted.
var statusAliases = map[string]Status{
	"":                                 StatusNew,
	"new":                              StatusNew,
	"new lead":                         StatusNew,
	"call #1 needed":                   StatusCall1Needed,
	"call 1 needed":                    StatusCall1Needed,
	"call #1 done":                     StatusCall1Done,
	"call 1 done":                      StatusCall1Done,
	"call #2 needed":                   StatusCall2Needed,
	"call 2 needed":                    StatusCall2Needed,
	"call #2 done":                     StatusCall2Done,
	"call 2 done":                      StatusCall2Done,
	"call #3 needed":                   StatusCall3Needed,
	"call 3 needed":                    StatusCall3Needed,
	"call #3 done":                     StatusCall3Done,
	"call 3 done":                      StatusCall3Done,
	"first class scheduled":            StatusFirstClassScheduled,
	"first class pending confirmation": StatusFirstClassScheduled,
	"first class confirmed":            StatusFirstClassConfirmed,
	"did not attend first class":       StatusDidNotAttend,
	"did not attend":                   StatusDidNotAttend,
	"no show":                          StatusDidNotAttend,
	"no-show":                          StatusDidNotAttend,
	"sold":                             StatusSold,
	"completed":                        StatusSold,
	"lost":                             StatusLost,
}

// ParseStatus resolves raw sheet text to a canonical status. Unknown text is
// passed through untouched with ok=false so the caller can keep the verbatim
// value (external wins) while logging the oddity.
func ParseStatus(raw string) (Status, bool) {
	key := strings.ToLower(strings.Join(strings.Fields(raw), " "))
	if status, ok := statusAliases[key]; ok {
		return status, true
	}
	return Status(strings.TrimSpace(raw)), false
}

// IsTerminal reports whether the lead left the pipeline.
func (s Status) IsTerminal() bool {
	return s == StatusSold || s == StatusLost
}

// stageOrder positions each status in the pipeline. Statuses sharing a slot
// are alternatives, not a sequence: a scheduled class either gets confirmed
// or missed, and a lead ends up Sold or Lost.
var stageOrder = map[Status]int{
	StatusNew:                 0,
	StatusCall1Needed:         1,
	StatusCall1Done:           2,
	StatusCall2Needed:         3,
	StatusCall2Done:           4,
	StatusCall3Needed:         5,
	StatusCall3Done:           6,
	StatusFirstClassScheduled: 7,
	StatusFirstClassConfirmed: 8,
	StatusDidNotAttend:        8,
	StatusSold:                9,
	StatusLost:                9,
}

// IsRegression reports whether moving from old to new walks the pipeline
// backwards. External edits are applied either way; regressions are only
// flagged in the audit trail. Unknown statuses never count as regressions.
func IsRegression(old, new Status) bool {
	oldPos, okOld := stageOrder[old]
	newPos, okNew := stageOrder[new]
	if !okOld || !okNew {
		return false
	}
	return newPos < oldPos
}

func (s Status) String() string { return string(s) }
