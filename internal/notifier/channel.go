package notifier

import (
	"context"
	"fmt"
	"strings"

	"leadflow_backend/internal/reminders/repository"
	"leadflow_backend/internal/schedule"
)

// Channel delivers one rendered message to one target identity. Target
// semantics are channel-specific (Telegram chat ID, email address).
type Channel interface {
	Send(ctx context.Context, target, text string) error
}

const messageTimeLayout = "2006-01-02 15:04"

// renderMessage builds the outgoing text for a due task.
func renderMessage(task repository.DueTask) string {
	lead := task.LeadName
	if lead == "" {
		lead = "lead " + task.LeadExternalID
	}

	var b strings.Builder
	switch task.Kind {
	case schedule.KindCall1:
		switch task.Level {
		case schedule.LevelSecond:
			fmt.Fprintf(&b, "Second reminder: %s still needs the first call.", lead)
		case schedule.LevelEscalated:
			fmt.Fprintf(&b, "Escalation: %s has had no first call for over 12 hours.", lead)
			if task.SellerName != "" {
				fmt.Fprintf(&b, " Assigned seller: %s.", task.SellerName)
			} else {
				b.WriteString(" No seller assigned.")
			}
		default:
			fmt.Fprintf(&b, "Reminder: call %s for the first time.", lead)
		}
	case schedule.KindCall2:
		fmt.Fprintf(&b, "Reminder: %s is due for the second call.", lead)
	case schedule.KindCall3:
		fmt.Fprintf(&b, "Reminder: %s is due for the third call.", lead)
	case schedule.KindFirstClassPre24:
		fmt.Fprintf(&b, "%s has a first class tomorrow", lead)
		if task.FirstClassAt != nil {
			fmt.Fprintf(&b, " at %s", task.FirstClassAt.Format(messageTimeLayout))
		}
		b.WriteString(". Please confirm attendance.")
	case schedule.KindFirstClassPre2:
		fmt.Fprintf(&b, "%s has a first class in 2 hours", lead)
		if task.FirstClassAt != nil {
			fmt.Fprintf(&b, " at %s", task.FirstClassAt.Format(messageTimeLayout))
		}
		b.WriteString(". Final confirmation needed.")
	case schedule.KindDidNotAttend:
		fmt.Fprintf(&b, "%s did not attend the first class. Reach out to reschedule.", lead)
	case schedule.KindFollowup:
		fmt.Fprintf(&b, "Follow-up due for %s.", lead)
	default:
		fmt.Fprintf(&b, "Reminder for %s.", lead)
	}

	if task.LeadPhone != "" {
		fmt.Fprintf(&b, "\nPhone: %s", task.LeadPhone)
	}
	if task.LeadStatus != "" {
		fmt.Fprintf(&b, "\nStatus: %s", task.LeadStatus)
	}
	if task.LeadComment != "" {
		fmt.Fprintf(&b, "\nComment: %s", task.LeadComment)
	}
	fmt.Fprintf(&b, "\nDue: %s", task.DueAt.UTC().Format(messageTimeLayout))
	return b.String()
}
