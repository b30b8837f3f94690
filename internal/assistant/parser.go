package assistant

import (
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// Candidate is a date-time reference extracted from free text. End is zero
// when the text carried no explicit end.
type Candidate struct {
	Start time.Time
	End   time.Time
}

// DateTimeParser extracts the single best date-time candidate from a
// message, anchored at base. Implementations return (nil, nil) when the text
// holds no recognizable reference; the resolver treats parser errors the
// same way, so natural-language ambiguity never becomes a hard failure.
//
// The interface exists so the rule-based implementation can be swapped for a
// statistical one without touching the classification logic.
type DateTimeParser interface {
	Parse(text string, base time.Time) (*Candidate, error)
}

type whenParser struct {
	w *when.Parser
}

// NewWhenParser builds the default rule-based parser. Its casual rules
// prefer future-dated readings: "tomorrow at 10am" lands on the next day and
// a bare weekday resolves to the coming occurrence.
func NewWhenParser() DateTimeParser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return &whenParser{w: w}
}

func (p *whenParser) Parse(text string, base time.Time) (*Candidate, error) {
	r, err := p.w.Parse(text, base)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, nil
	}
	return &Candidate{Start: r.Time}, nil
}
