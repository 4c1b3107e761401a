package notifier

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"leadflow_backend/internal/reminders/repository"
	"leadflow_backend/internal/schedule"
	"leadflow_backend/platform/logger"
)

type fakeStore struct {
	mu    sync.Mutex
	tasks []*repository.DueTask
}

func (f *fakeStore) ListDue(_ context.Context, now time.Time, attemptCap int) ([]repository.DueTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var due []repository.DueTask
	for _, t := range f.tasks {
		if !t.Sent && !t.Superseded && !t.DueAt.After(now) && t.Attempts < attemptCap {
			due = append(due, *t)
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		if due[i].LeadID != due[j].LeadID {
			return due[i].LeadID.String() < due[j].LeadID.String()
		}
		if !due[i].DueAt.Equal(due[j].DueAt) {
			return due[i].DueAt.Before(due[j].DueAt)
		}
		return due[i].Level < due[j].Level
	})
	return due, nil
}

func (f *fakeStore) Deliver(ctx context.Context, taskID uuid.UUID, send func(ctx context.Context) error) (bool, error) {
	f.mu.Lock()
	var task *repository.DueTask
	for _, t := range f.tasks {
		if t.ID == taskID {
			task = t
			break
		}
	}
	f.mu.Unlock()
	if task == nil || task.Sent || task.Superseded {
		return false, nil
	}
	if err := send(ctx); err != nil {
		f.mu.Lock()
		task.Attempts++
		f.mu.Unlock()
		return false, err
	}
	f.mu.Lock()
	task.Attempts++
	task.Sent = true
	f.mu.Unlock()
	return true, nil
}

type sentMessage struct {
	target string
	text   string
}

type fakeChannel struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (f *fakeChannel) Send(_ context.Context, target, text string) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	f.sent = append(f.sent, sentMessage{target, text})
	f.mu.Unlock()
	return nil
}

func (f *fakeChannel) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

type cfgStub struct {
	maxAttempts int
	concurrency int
	adminChats  []string
	adminEmail  string
}

func (c cfgStub) GetDeliveryMaxAttempts() int { return c.maxAttempts }
func (c cfgStub) GetDeliveryConcurrency() int { return c.concurrency }
func (c cfgStub) GetAdminChatIDs() []string   { return c.adminChats }
func (c cfgStub) GetAdminEmail() string       { return c.adminEmail }

func strPtr(s string) *string { return &s }

func sellerTask(due time.Time, kind schedule.Kind, level int) *repository.DueTask {
	return &repository.DueTask{
		Task: repository.Task{
			ID:    uuid.New(),
			LeadID: uuid.New(),
			Kind:  kind,
			Level: level,
			DueAt: due,
		},
		LeadExternalID: "42",
		LeadName:       "Anna K",
		LeadPhone:      "+998901234567",
		SellerName:     "Bek",
		SellerChatID:   strPtr("chat-bek"),
	}
}

func TestDispatchSendsDueTasks(t *testing.T) {
	now := time.Now()
	task := sellerTask(now.Add(-time.Minute), schedule.KindCall1, schedule.LevelFirst)
	store := &fakeStore{tasks: []*repository.DueTask{task}}
	seller := &fakeChannel{}
	n := New(store, seller, &fakeChannel{}, nil, cfgStub{maxAttempts: 3, concurrency: 2}, logger.New("development"))

	sent, err := n.Dispatch(context.Background(), now)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if sent != 1 {
		t.Fatalf("sent = %d, want 1", sent)
	}
	msgs := seller.messages()
	if len(msgs) != 1 || msgs[0].target != "chat-bek" {
		t.Fatalf("unexpected deliveries: %v", msgs)
	}
	if !strings.Contains(msgs[0].text, "Anna K") || !strings.Contains(msgs[0].text, "+998901234567") {
		t.Fatalf("message missing lead context: %q", msgs[0].text)
	}
	if !task.Sent {
		t.Fatal("task must be marked sent")
	}
}

func TestDispatchNeverDoubleSends(t *testing.T) {
	now := time.Now()
	task := sellerTask(now.Add(-time.Minute), schedule.KindCall1, schedule.LevelFirst)
	store := &fakeStore{tasks: []*repository.DueTask{task}}
	seller := &fakeChannel{}
	n := New(store, seller, &fakeChannel{}, nil, cfgStub{maxAttempts: 3, concurrency: 1}, logger.New("development"))

	for i := 0; i < 3; i++ {
		if _, err := n.Dispatch(context.Background(), now); err != nil {
			t.Fatalf("dispatch %d: %v", i, err)
		}
	}
	if got := len(seller.messages()); got != 1 {
		t.Fatalf("channel received %d sends, want exactly 1", got)
	}
}

func TestDispatchEscalationFansOutToAdmins(t *testing.T) {
	now := time.Now()
	task := sellerTask(now.Add(-time.Minute), schedule.KindCall1, schedule.LevelEscalated)
	store := &fakeStore{tasks: []*repository.DueTask{task}}
	seller := &fakeChannel{}
	admin := &fakeChannel{}
	email := &fakeChannel{}
	cfg := cfgStub{maxAttempts: 3, concurrency: 1, adminChats: []string{"admin-1", "admin-2"}, adminEmail: "boss@example.com"}
	n := New(store, seller, admin, email, cfg, logger.New("development"))

	sent, err := n.Dispatch(context.Background(), now)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if sent != 1 {
		t.Fatalf("sent = %d, want 1", sent)
	}
	if len(seller.messages()) != 0 {
		t.Fatal("escalation must not go to the seller channel")
	}
	admins := admin.messages()
	if len(admins) != 2 || admins[0].target != "admin-1" || admins[1].target != "admin-2" {
		t.Fatalf("admin fan-out wrong: %v", admins)
	}
	mails := email.messages()
	if len(mails) != 1 || mails[0].target != "boss@example.com" {
		t.Fatalf("email copy wrong: %v", mails)
	}
}

func TestDispatchFailureKeepsTaskOpenUntilExhausted(t *testing.T) {
	now := time.Now()
	task := sellerTask(now.Add(-time.Minute), schedule.KindCall2, schedule.LevelFirst)
	store := &fakeStore{tasks: []*repository.DueTask{task}}
	seller := &fakeChannel{err: errors.New("telegram down")}
	n := New(store, seller, &fakeChannel{}, nil, cfgStub{maxAttempts: 3, concurrency: 1}, logger.New("development"))

	for cycle := 0; cycle < 5; cycle++ {
		sent, err := n.Dispatch(context.Background(), now)
		if err != nil {
			t.Fatalf("dispatch cycle %d: %v", cycle, err)
		}
		if sent != 0 {
			t.Fatalf("cycle %d reported %d sends on a dead channel", cycle, sent)
		}
	}
	if task.Sent {
		t.Fatal("failed task must never be marked sent")
	}
	if task.Attempts != 3 {
		t.Fatalf("attempts = %d, want exactly the cap of 3", task.Attempts)
	}
}

func TestDispatchUnlinkedSellerBurnsAttempts(t *testing.T) {
	now := time.Now()
	task := sellerTask(now.Add(-time.Minute), schedule.KindCall1, schedule.LevelFirst)
	task.SellerChatID = nil
	store := &fakeStore{tasks: []*repository.DueTask{task}}
	seller := &fakeChannel{}
	n := New(store, seller, &fakeChannel{}, nil, cfgStub{maxAttempts: 3, concurrency: 1}, logger.New("development"))

	for cycle := 0; cycle < 4; cycle++ {
		if _, err := n.Dispatch(context.Background(), now); err != nil {
			t.Fatalf("dispatch cycle %d: %v", cycle, err)
		}
	}
	if len(seller.messages()) != 0 {
		t.Fatal("nothing should reach the channel without a linked chat")
	}
	if task.Sent || task.Attempts != 3 {
		t.Fatalf("task state sent=%v attempts=%d, want open with capped attempts", task.Sent, task.Attempts)
	}
}

func TestDispatchLeadTasksStayOrdered(t *testing.T) {
	now := time.Now()
	leadID := uuid.New()
	first := sellerTask(now.Add(-2*time.Hour), schedule.KindCall1, schedule.LevelFirst)
	second := sellerTask(now.Add(-time.Hour), schedule.KindCall1, schedule.LevelSecond)
	first.LeadID = leadID
	second.LeadID = leadID
	store := &fakeStore{tasks: []*repository.DueTask{second, first}}
	seller := &fakeChannel{}
	n := New(store, seller, &fakeChannel{}, nil, cfgStub{maxAttempts: 3, concurrency: 4}, logger.New("development"))

	if _, err := n.Dispatch(context.Background(), now); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	msgs := seller.messages()
	if len(msgs) != 2 {
		t.Fatalf("got %d sends, want 2", len(msgs))
	}
	if !strings.Contains(msgs[0].text, "first time") || !strings.Contains(msgs[1].text, "Second reminder") {
		t.Fatalf("stage order violated: %q then %q", msgs[0].text, msgs[1].text)
	}
}
