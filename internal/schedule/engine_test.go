package schedule

import (
	"testing"
	"time"

	"leadflow_backend/internal/leads/domain"
)

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse("2006-01-02 15:04:05", value)
	if err != nil {
		t.Fatalf("parse time %q: %v", value, err)
	}
	return ts
}

func findSpec(specs []TaskSpec, kind Kind, level int) (TaskSpec, bool) {
	for _, s := range specs {
		if s.Kind == kind && s.Level == level {
			return s, true
		}
	}
	return TaskSpec{}, false
}

func TestDeriveNewLead(t *testing.T) {
	engine := NewEngine(DefaultPolicy())
	created := mustTime(t, "2026-03-01 10:00:00")

	specs := engine.Derive(LeadView{
		Status:    domain.StatusNew,
		CreatedAt: &created,
	})

	if len(specs) != 3 {
		t.Fatalf("expected 3 call1 tasks, got %d: %v", len(specs), specs)
	}
	cases := []struct {
		level int
		due   time.Time
	}{
		{LevelFirst, created.Add(time.Hour)},
		{LevelSecond, created.Add(2 * time.Hour)},
		{LevelEscalated, created.Add(12 * time.Hour)},
	}
	for _, c := range cases {
		spec, ok := findSpec(specs, KindCall1, c.level)
		if !ok {
			t.Fatalf("missing call1 level %d", c.level)
		}
		if !spec.DueAt.Equal(c.due) {
			t.Fatalf("call1 level %d due %v, want %v", c.level, spec.DueAt, c.due)
		}
	}
}

func TestDeriveFallsBackToFirstSeen(t *testing.T) {
	engine := NewEngine(DefaultPolicy())
	seen := mustTime(t, "2026-03-01 09:00:00")

	specs := engine.Derive(LeadView{
		Status:      domain.StatusNew,
		FirstSeenAt: seen,
	})

	spec, ok := findSpec(specs, KindCall1, LevelFirst)
	if !ok {
		t.Fatal("missing call1 level 1")
	}
	if !spec.DueAt.Equal(seen.Add(time.Hour)) {
		t.Fatalf("due %v, want %v", spec.DueAt, seen.Add(time.Hour))
	}
}

func TestDeriveAfterFirstCall(t *testing.T) {
	engine := NewEngine(DefaultPolicy())
	created := mustTime(t, "2026-03-01 10:00:00")
	call1 := mustTime(t, "2026-03-01 11:30:00")

	specs := engine.Derive(LeadView{
		Status:    domain.StatusCall1Done,
		CreatedAt: &created,
		Call1At:   &call1,
	})

	if _, ok := findSpec(specs, KindCall1, LevelFirst); ok {
		t.Fatal("call1 chase should be gone once the call is logged")
	}
	spec, ok := findSpec(specs, KindCall2, LevelFirst)
	if !ok {
		t.Fatal("missing call2 task")
	}
	if want := call1.Add(2 * time.Hour); !spec.DueAt.Equal(want) {
		t.Fatalf("call2 due %v, want %v", spec.DueAt, want)
	}
}

func TestDeriveCall3Chase(t *testing.T) {
	engine := NewEngine(DefaultPolicy())
	call1 := mustTime(t, "2026-03-01 11:00:00")
	call2 := mustTime(t, "2026-03-01 15:00:00")

	specs := engine.Derive(LeadView{
		Status:  domain.StatusCall2Done,
		Call1At: &call1,
		Call2At: &call2,
	})

	spec, ok := findSpec(specs, KindCall3, LevelFirst)
	if !ok {
		t.Fatal("missing call3 task")
	}
	if want := call2.Add(24 * time.Hour); !spec.DueAt.Equal(want) {
		t.Fatalf("call3 due %v, want %v", spec.DueAt, want)
	}
	if _, ok := findSpec(specs, KindCall2, LevelFirst); ok {
		t.Fatal("call2 chase should be gone once the second call is logged")
	}
}

func TestDeriveFirstClassReminders(t *testing.T) {
	engine := NewEngine(DefaultPolicy())
	call1 := mustTime(t, "2026-03-01 11:00:00")
	call2 := mustTime(t, "2026-03-01 15:00:00")
	call3 := mustTime(t, "2026-03-02 16:00:00")
	class := mustTime(t, "2026-03-05 18:00:00")

	view := LeadView{
		Status:       domain.StatusFirstClassScheduled,
		Call1At:      &call1,
		Call2At:      &call2,
		Call3At:      &call3,
		FirstClassAt: &class,
	}

	specs := engine.Derive(view)
	pre24, ok := findSpec(specs, KindFirstClassPre24, LevelFirst)
	if !ok {
		t.Fatal("missing pre-24h reminder")
	}
	if want := class.Add(-24 * time.Hour); !pre24.DueAt.Equal(want) {
		t.Fatalf("pre-24h due %v, want %v", pre24.DueAt, want)
	}
	if _, ok := findSpec(specs, KindFirstClassPre2, LevelFirst); !ok {
		t.Fatal("missing pre-2h reminder")
	}

	// Confirmed attendance retires both.
	view.FirstClassConfirmed = true
	specs = engine.Derive(view)
	if len(specs) != 0 {
		t.Fatalf("confirmed class should derive nothing, got %v", specs)
	}
}

func TestDeriveDidNotAttend(t *testing.T) {
	engine := NewEngine(DefaultPolicy())
	call1 := mustTime(t, "2026-03-01 11:00:00")
	call2 := mustTime(t, "2026-03-01 15:00:00")
	call3 := mustTime(t, "2026-03-02 16:00:00")
	class := mustTime(t, "2026-03-05 18:00:00")

	view := LeadView{
		Status:       domain.StatusDidNotAttend,
		Call1At:      &call1,
		Call2At:      &call2,
		Call3At:      &call3,
		FirstClassAt: &class,
	}

	specs := engine.Derive(view)
	spec, ok := findSpec(specs, KindDidNotAttend, LevelFirst)
	if !ok {
		t.Fatalf("missing did-not-attend task, got %v", specs)
	}
	if !spec.DueAt.Equal(class) {
		t.Fatalf("did-not-attend due %v, want the missed class time %v", spec.DueAt, class)
	}
	if _, ok := findSpec(specs, KindCall1, LevelFirst); ok {
		t.Fatal("no call chase for a lead past the first class")
	}

	// Same view derives the same key and due, so the one sent nudge
	// satisfies it forever.
	again := engine.Derive(view)
	got, _ := findSpec(again, KindDidNotAttend, LevelFirst)
	if !got.DueAt.Equal(spec.DueAt) {
		t.Fatalf("did-not-attend due moved between derivations: %v vs %v", got.DueAt, spec.DueAt)
	}
}

func TestDeriveFollowup(t *testing.T) {
	engine := NewEngine(DefaultPolicy())
	call1 := mustTime(t, "2026-03-01 11:00:00")
	followup := mustTime(t, "2026-03-10 12:00:00")

	specs := engine.Derive(LeadView{
		Status:         domain.StatusCall1Done,
		Call1At:        &call1,
		NextFollowupAt: &followup,
	})

	spec, ok := findSpec(specs, KindFollowup, LevelFirst)
	if !ok {
		t.Fatal("missing followup task")
	}
	if !spec.DueAt.Equal(followup) {
		t.Fatalf("followup due %v, want %v", spec.DueAt, followup)
	}
}

func TestDeriveTerminal(t *testing.T) {
	engine := NewEngine(DefaultPolicy())
	followup := mustTime(t, "2026-03-10 12:00:00")

	for _, status := range []domain.Status{domain.StatusSold, domain.StatusLost} {
		specs := engine.Derive(LeadView{
			Status:         status,
			NextFollowupAt: &followup,
		})
		if len(specs) != 0 {
			t.Fatalf("%s lead should derive nothing, got %v", status, specs)
		}
	}
}

func TestDeriveIsIdempotent(t *testing.T) {
	engine := NewEngine(DefaultPolicy())
	created := mustTime(t, "2026-03-01 10:00:00")
	now := created.Add(time.Minute)
	view := LeadView{Status: domain.StatusNew, CreatedAt: &created}

	first := engine.Derive(view)
	second := engine.Derive(view)
	create, supersede := Diff(toCurrent(first), second, now)
	if len(create) != 0 || len(supersede) != 0 {
		t.Fatalf("re-derivation should be a no-op, got create=%v supersede=%v", create, supersede)
	}
}

func toCurrent(specs []TaskSpec) []CurrentTask {
	current := make([]CurrentTask, 0, len(specs))
	for _, s := range specs {
		current = append(current, CurrentTask{Kind: s.Kind, Level: s.Level, DueAt: s.DueAt})
	}
	return current
}

func TestDiffSupersedesOnStageChange(t *testing.T) {
	created := mustTime(t, "2026-03-01 10:00:00")
	current := []CurrentTask{
		{Kind: KindCall1, Level: LevelFirst, DueAt: created.Add(time.Hour)},
		{Kind: KindCall1, Level: LevelSecond, DueAt: created.Add(2 * time.Hour)},
		{Kind: KindCall1, Level: LevelEscalated, DueAt: created.Add(12 * time.Hour)},
	}
	call1 := created.Add(90 * time.Minute)
	desired := []TaskSpec{
		{Kind: KindCall2, Level: LevelFirst, DueAt: call1.Add(2 * time.Hour)},
	}

	create, supersede := Diff(current, desired, call1)
	if len(supersede) != 3 {
		t.Fatalf("expected all 3 call1 tasks superseded, got %v", supersede)
	}
	if len(create) != 1 || create[0].Kind != KindCall2 {
		t.Fatalf("expected a single call2 creation, got %v", create)
	}
}

func TestDiffSupersedesOnDueChange(t *testing.T) {
	due := mustTime(t, "2026-03-10 12:00:00")
	moved := due.Add(48 * time.Hour)

	current := []CurrentTask{{Kind: KindFollowup, Level: LevelFirst, DueAt: due}}
	desired := []TaskSpec{{Kind: KindFollowup, Level: LevelFirst, DueAt: moved}}

	create, supersede := Diff(current, desired, due.Add(-time.Hour))
	if len(supersede) != 1 || !supersede[0].DueAt.Equal(due) {
		t.Fatalf("expected old followup superseded, got %v", supersede)
	}
	if len(create) != 1 || !create[0].DueAt.Equal(moved) {
		t.Fatalf("expected followup recreated at new time, got %v", create)
	}
}

func TestDiffLeavesPastDueAlone(t *testing.T) {
	due := mustTime(t, "2026-03-01 11:00:00")
	current := []CurrentTask{{Kind: KindCall1, Level: LevelFirst, DueAt: due}}
	desired := []TaskSpec{{Kind: KindCall1, Level: LevelFirst, DueAt: due}}

	create, supersede := Diff(current, desired, due.Add(48*time.Hour))
	if len(create) != 0 || len(supersede) != 0 {
		t.Fatalf("matching task must survive even when past due, got create=%v supersede=%v", create, supersede)
	}
}

func TestDiffKeepsDueUnsentPreClassTask(t *testing.T) {
	engine := NewEngine(DefaultPolicy())
	class := mustTime(t, "2026-03-05 18:00:00")
	view := LeadView{
		Status:       domain.StatusFirstClassScheduled,
		FirstClassAt: &class,
	}

	// Tasks were created in time, two days out.
	created := engine.Derive(view)
	current := toCurrent(created)

	// An hour before the class both reminders are past due. The pre-2h one
	// is still unsent; re-deriving the lead must leave it for dispatch, not
	// retire it.
	now := class.Add(-time.Hour)
	create, supersede := Diff(current, engine.Derive(view), now)
	if len(supersede) != 0 {
		t.Fatalf("due, unsent pre-class reminders must not be superseded, got %v", supersede)
	}
	if len(create) != 0 {
		t.Fatalf("unexpected creations %v", create)
	}
}

func TestDiffSkipsPastPreClassCreation(t *testing.T) {
	class := mustTime(t, "2026-03-05 18:00:00")
	now := class.Add(-time.Hour)
	desired := []TaskSpec{
		{Kind: KindFirstClassPre24, Level: LevelFirst, DueAt: class.Add(-24 * time.Hour)},
		{Kind: KindFirstClassPre2, Level: LevelFirst, DueAt: class.Add(-2 * time.Hour)},
	}

	// The class date appeared late; both marks are already behind us. They
	// are skipped at creation time, not back-filled.
	create, supersede := Diff(nil, desired, now)
	if len(create) != 0 || len(supersede) != 0 {
		t.Fatalf("past pre-class specs must not be created, got create=%v supersede=%v", create, supersede)
	}

	// Seen earlier, only the 24h mark is behind us.
	create, _ = Diff(nil, desired, class.Add(-12*time.Hour))
	if len(create) != 1 || create[0].Kind != KindFirstClassPre2 {
		t.Fatalf("expected only the pre-2h creation, got %v", create)
	}
}

func TestDiffDoesNotRecreateSentTask(t *testing.T) {
	engine := NewEngine(DefaultPolicy())
	call1 := mustTime(t, "2026-03-01 11:00:00")
	view := LeadView{Status: domain.StatusCall1Done, Call1At: &call1}

	desired := engine.Derive(view)
	want, ok := findSpec(desired, KindCall2, LevelFirst)
	if !ok {
		t.Fatal("missing call2 spec")
	}

	// The call2 reminder went out; later the lead is reconciled again over
	// an unrelated edit. The sent row satisfies the key, nothing is
	// recreated and nothing resent.
	current := []CurrentTask{{Kind: KindCall2, Level: LevelFirst, DueAt: want.DueAt, Sent: true}}
	create, supersede := Diff(current, engine.Derive(view), want.DueAt.Add(3*time.Hour))
	if len(create) != 0 {
		t.Fatalf("sent reminder must not be recreated, got %v", create)
	}
	if len(supersede) != 0 {
		t.Fatalf("sent rows are never superseded, got %v", supersede)
	}
}

func TestDiffRecreatesWhenSentDueMoved(t *testing.T) {
	due := mustTime(t, "2026-03-10 12:00:00")
	moved := due.Add(72 * time.Hour)

	// The followup went out, then the seller set a later followup date: a
	// genuinely new reminder under the same key.
	current := []CurrentTask{{Kind: KindFollowup, Level: LevelFirst, DueAt: due, Sent: true}}
	desired := []TaskSpec{{Kind: KindFollowup, Level: LevelFirst, DueAt: moved}}

	create, supersede := Diff(current, desired, due.Add(time.Hour))
	if len(create) != 1 || !create[0].DueAt.Equal(moved) {
		t.Fatalf("expected a new followup at the moved time, got %v", create)
	}
	if len(supersede) != 0 {
		t.Fatalf("sent rows are never superseded, got %v", supersede)
	}
}

func TestAudienceFor(t *testing.T) {
	if got := AudienceFor(KindCall1, LevelEscalated); got != AudienceAdmin {
		t.Fatalf("call1 level 3 audience = %s, want admin", got)
	}
	if got := AudienceFor(KindCall1, LevelFirst); got != AudienceSeller {
		t.Fatalf("call1 level 1 audience = %s, want seller", got)
	}
	if got := AudienceFor(KindFollowup, LevelFirst); got != AudienceSeller {
		t.Fatalf("followup audience = %s, want seller", got)
	}
}
