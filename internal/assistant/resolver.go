package assistant

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

type Action string

const (
	ActionBook       Action = "book"
	ActionCancel     Action = "cancel"
	ActionInfo       Action = "informational"
	ActionUnresolved Action = "unresolved"
)

type Outcome string

const (
	OutcomeResolved           Outcome = "resolved"
	OutcomeNeedsClarification Outcome = "needs_clarification"
	OutcomeUnhandled          Outcome = "unhandled"
)

type MissingField string

const (
	MissingDoctorName MissingField = "doctor_name"
	MissingDateTime   MissingField = "date_time"
)

// Intent is the structured reading of one message. For a resolved booking
// DoctorName, Start and End are all set; otherwise Missing lists what a
// follow-up message still has to provide.
type Intent struct {
	Action     Action
	DoctorName string
	Start      time.Time
	End        time.Time
	Missing    []MissingField
}

// Result is what the resolver hands back to the chat surface. It is a
// candidate only: reservation is always the booking orchestrator's job.
type Result struct {
	Outcome Outcome
	Reply   string
	Intent  Intent
}

const (
	replyCancelHelp = "To cancel your appointment, go to My Appointments and click Cancel."
	replyNeedBoth   = "I can help book an appointment. Please mention the doctor name (e.g., Dr. Ava Mitchell) and preferred time."
	replyPastTime   = "The provided date/time is invalid or in the past. Please provide a future time."
	replyDoctors    = "We have experienced doctors across various specialties. Visit the Doctors page to explore."
	replyHours      = "Doctors are available from 10 AM to 9 PM."
	replyOnline     = "Yes, online consultations are available."
	replyGreeting   = "Hello! How can I assist you today?"
	replyFallback   = "I'm here to help with appointments, doctors, and timings."
)

var (
	cancelKeywords   = []string{"cancel", "delete"}
	bookKeywords     = []string{"book", "appointment", "schedule", "reserve"}
	greetingKeywords = []string{"hi", "hello", "hey"}

	// Honorific followed by one or two capitalized name tokens, matched
	// against the raw message so casing carries the signal.
	doctorPattern = regexp.MustCompile(`\bDr\.?\s+[A-Z][a-z]+(?:\s+[A-Z][a-z]+)?\b`)
)

const replyTimeLayout = "Mon, 2 Jan 2006 at 3:04 PM"

// Resolver is a single-pass keyword classifier over incoming chat messages.
// It never raises hard errors: unparseable text degrades to a clarification
// or fallback reply.
type Resolver struct {
	parser     DateTimeParser
	slotLength time.Duration
}

func NewResolver(parser DateTimeParser, slotLength time.Duration) *Resolver {
	if slotLength <= 0 {
		slotLength = 30 * time.Minute
	}
	return &Resolver{parser: parser, slotLength: slotLength}
}

// Resolve classifies message anchored at now. now also decides the validity
// gate: a start that is not strictly in the future is rejected even when
// doctor and time both parsed.
func (r *Resolver) Resolve(message string, now time.Time) Result {
	lower := strings.ToLower(message)

	if containsAny(lower, cancelKeywords) && strings.Contains(lower, "appointment") {
		return Result{
			Outcome: OutcomeResolved,
			Reply:   replyCancelHelp,
			Intent:  Intent{Action: ActionCancel},
		}
	}

	if containsAny(lower, bookKeywords) {
		return r.resolveBooking(message, now)
	}

	if reply, ok := informationalReply(lower); ok {
		return Result{
			Outcome: OutcomeResolved,
			Reply:   reply,
			Intent:  Intent{Action: ActionInfo},
		}
	}

	return Result{
		Outcome: OutcomeUnhandled,
		Reply:   replyFallback,
		Intent:  Intent{Action: ActionUnresolved},
	}
}

func (r *Resolver) resolveBooking(message string, now time.Time) Result {
	doctor := doctorPattern.FindString(message)

	candidate, err := r.parser.Parse(message, now)
	if err != nil {
		candidate = nil
	}

	intent := Intent{Action: ActionBook, DoctorName: doctor}

	if doctor == "" && candidate == nil {
		intent.Missing = []MissingField{MissingDoctorName, MissingDateTime}
		return Result{Outcome: OutcomeNeedsClarification, Reply: replyNeedBoth, Intent: intent}
	}

	if doctor == "" {
		intent.Start = candidate.Start
		intent.Missing = []MissingField{MissingDoctorName}
		reply := fmt.Sprintf(
			"Which doctor would you like to book for %s? (e.g., Dr. Ava Mitchell)",
			candidate.Start.Format(replyTimeLayout),
		)
		return Result{Outcome: OutcomeNeedsClarification, Reply: reply, Intent: intent}
	}

	if candidate == nil {
		intent.Missing = []MissingField{MissingDateTime}
		reply := fmt.Sprintf("When would you like to book with %s? (e.g., tomorrow at 10am)", doctor)
		return Result{Outcome: OutcomeNeedsClarification, Reply: reply, Intent: intent}
	}

	if !candidate.Start.After(now) {
		intent.Missing = []MissingField{MissingDateTime}
		return Result{Outcome: OutcomeNeedsClarification, Reply: replyPastTime, Intent: intent}
	}

	intent.Start = candidate.Start
	intent.End = candidate.End
	if intent.End.IsZero() {
		intent.End = intent.Start.Add(r.slotLength)
	}

	reply := fmt.Sprintf(
		"Your appointment with %s is tentatively booked for %s.",
		doctor,
		intent.Start.Format(replyTimeLayout),
	)
	return Result{Outcome: OutcomeResolved, Reply: reply, Intent: intent}
}

func informationalReply(lower string) (string, bool) {
	switch {
	case strings.Contains(lower, "doctor"):
		return replyDoctors, true
	case strings.Contains(lower, "time") || strings.Contains(lower, "timing"):
		return replyHours, true
	case strings.Contains(lower, "online"):
		return replyOnline, true
	case containsAny(lower, greetingKeywords):
		return replyGreeting, true
	}
	return "", false
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
