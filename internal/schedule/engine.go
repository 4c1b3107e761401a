package schedule

import (
	"time"

	"leadflow_backend/internal/leads/domain"
)

// Kind identifies a reminder family. Together with the escalation level it
// keys a task: at most one open task per (lead, kind, level).
type Kind string

const (
	KindCall1           Kind = "call1"
	KindCall2           Kind = "call2"
	KindCall3           Kind = "call3"
	KindFirstClassPre24 Kind = "first_class_pre24h"
	KindFirstClassPre2  Kind = "first_class_pre2h"
	KindDidNotAttend    Kind = "did_not_attend"
	KindFollowup        Kind = "followup"
)

// Escalation levels within a kind. Level ordering is also send ordering when
// several tasks of one lead are due in the same cycle.
const (
	LevelFirst     = 1
	LevelSecond    = 2
	LevelEscalated = 3
)

// Audience says who a task addresses.
type Audience string

const (
	AudienceSeller Audience = "seller"
	AudienceAdmin  Audience = "admin"
)

// AudienceFor derives the recipient class from the task key. Only the third
// call-1 tier escalates to the admin channel.
func AudienceFor(kind Kind, level int) Audience {
	if kind == KindCall1 && level == LevelEscalated {
		return AudienceAdmin
	}
	return AudienceSeller
}

// TaskSpec is one desired open reminder.
type TaskSpec struct {
	Kind  Kind
	Level int
	DueAt time.Time
}

// LeadView is the slice of lead state the engine needs. The reconciler maps
// the persisted lead onto it; keeping the engine off the repository types
// keeps it pure and trivially testable.
type LeadView struct {
	Status              domain.Status
	CreatedAt           *time.Time
	FirstSeenAt         time.Time
	Call1At             *time.Time
	Call2At             *time.Time
	Call3At             *time.Time
	NextFollowupAt      *time.Time
	FirstClassAt        *time.Time
	FirstClassConfirmed bool
}

// Engine computes desired task sets from lead state.
type Engine struct {
	policy Policy
}

func NewEngine(policy Policy) *Engine {
	return &Engine{policy: policy}
}

// Derive returns the complete desired task set for a lead. It is a pure
// function of the lead and the policy; the clock only enters in Diff, where
// a past-due pre-class spec is skipped at creation time. A spec whose task
// already exists stays in the desired set even when its due time has
// passed, so a due-but-unsent reminder is never retired by re-derivation.
//
// Re-deriving an unchanged lead yields the identical set, which is what
// makes the refresh idempotent.
func (e *Engine) Derive(lead LeadView) []TaskSpec {
	if lead.Status.IsTerminal() {
		return nil
	}

	var specs []TaskSpec

	// First-call chase: staged seller reminders plus the admin escalation,
	// all anchored on the external creation time (first sighting when the
	// sheet has none). Retired the moment Call_1_Time is stamped.
	if lead.Call1At == nil && callStageOpen(lead.Status) {
		base := lead.FirstSeenAt
		if lead.CreatedAt != nil {
			base = *lead.CreatedAt
		}
		specs = append(specs,
			TaskSpec{Kind: KindCall1, Level: LevelFirst, DueAt: base.Add(e.policy.Call1First)},
			TaskSpec{Kind: KindCall1, Level: LevelSecond, DueAt: base.Add(e.policy.Call1Second)},
			TaskSpec{Kind: KindCall1, Level: LevelEscalated, DueAt: base.Add(e.policy.Call1Escalation)},
		)
	}

	// Each completed call schedules the chase for the next one; a stamped
	// later call retires the earlier chase.
	if lead.Call1At != nil && lead.Call2At == nil {
		specs = append(specs, TaskSpec{Kind: KindCall2, Level: LevelFirst, DueAt: lead.Call1At.Add(e.policy.Call2Delay)})
	}
	if lead.Call2At != nil && lead.Call3At == nil {
		specs = append(specs, TaskSpec{Kind: KindCall3, Level: LevelFirst, DueAt: lead.Call2At.Add(e.policy.Call3Delay)})
	}

	// Pre-class reminders ask the seller to confirm attendance; once the
	// confirmation flag is set they are moot.
	if lead.FirstClassAt != nil && !lead.FirstClassConfirmed {
		specs = append(specs,
			TaskSpec{Kind: KindFirstClassPre24, Level: LevelFirst, DueAt: lead.FirstClassAt.Add(-e.policy.FirstClassPre24)},
			TaskSpec{Kind: KindFirstClassPre2, Level: LevelFirst, DueAt: lead.FirstClassAt.Add(-e.policy.FirstClassPre2)},
		)
	}

	// A no-show gets a single reschedule nudge, anchored on the missed
	// class so the key stays stable across re-derivations.
	if lead.Status == domain.StatusDidNotAttend {
		anchor := lead.FirstSeenAt
		if lead.FirstClassAt != nil {
			anchor = *lead.FirstClassAt
		}
		specs = append(specs, TaskSpec{Kind: KindDidNotAttend, Level: LevelFirst, DueAt: anchor})
	}

	if lead.NextFollowupAt != nil {
		specs = append(specs, TaskSpec{Kind: KindFollowup, Level: LevelFirst, DueAt: *lead.NextFollowupAt})
	}

	return specs
}

// callStageOpen reports whether the first call is still expected for the
// given status. Unknown statuses keep the chase alive as long as no call
// timestamp exists; the sheet is hand-edited and misspelled statuses must
// not silently kill reminders.
func callStageOpen(status domain.Status) bool {
	switch status {
	case domain.StatusCall1Done, domain.StatusCall2Needed, domain.StatusCall2Done,
		domain.StatusCall3Needed, domain.StatusCall3Done,
		domain.StatusFirstClassScheduled, domain.StatusFirstClassConfirmed,
		domain.StatusDidNotAttend:
		return false
	}
	return true
}

// CurrentTask is the engine's view of one persisted, not superseded task.
// Sent rows stay in the view: a delivered reminder satisfies its key, so
// re-derivation never recreates and resends it.
type CurrentTask struct {
	Kind  Kind
	Level int
	DueAt time.Time
	Sent  bool
}

// Diff compares the tasks on record with the freshly derived set.
//
// An open task is superseded when its key vanished from the desired set
// (its stage completed, the lead went terminal) or when its due time moved
// (the anchoring timestamp was edited externally). Sent tasks are never
// superseded; a sent task matching a desired key and due time marks that
// spec as satisfied. A remaining spec is created, except a pre-class spec
// already in the past, which is skipped at creation time and never
// back-filled. An open task whose key and due time still match survives
// untouched however far past due it is.
func Diff(current []CurrentTask, desired []TaskSpec, now time.Time) (create []TaskSpec, supersede []CurrentTask) {
	type key struct {
		kind  Kind
		level int
	}

	desiredByKey := make(map[key]TaskSpec, len(desired))
	for _, spec := range desired {
		desiredByKey[key{spec.Kind, spec.Level}] = spec
	}

	satisfied := make(map[key]bool, len(current))
	for _, task := range current {
		k := key{task.Kind, task.Level}
		want, wanted := desiredByKey[k]
		matches := wanted && want.DueAt.Equal(task.DueAt)
		if task.Sent {
			if matches {
				satisfied[k] = true
			}
			continue
		}
		if !matches {
			supersede = append(supersede, task)
			continue
		}
		satisfied[k] = true
	}

	for _, spec := range desired {
		if satisfied[key{spec.Kind, spec.Level}] {
			continue
		}
		if preClass(spec.Kind) && !spec.DueAt.After(now) {
			continue
		}
		create = append(create, spec)
	}

	return create, supersede
}

func preClass(kind Kind) bool {
	return kind == KindFirstClassPre24 || kind == KindFirstClassPre2
}
