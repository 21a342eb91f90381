package session

import (
	"github.com/ahrav/specter/internal/domain/session"
)

// Aggregator collects the positive lines of one session. It is written only
// by the session's reader and read after the reader has finished.
type Aggregator struct {
	lines []string
}

// Add appends a positive line.
func (a *Aggregator) Add(line string) { a.lines = append(a.lines, line) }

// Lines returns the collected lines in arrival order.
func (a *Aggregator) Lines() []string { return a.lines }

// Count returns the number of collected lines.
func (a *Aggregator) Count() int { return len(a.lines) }

// Translator turns raw output lines into LineEvents with a running checked
// counter. Noise lines produce no event and do not count.
type Translator struct {
	checked int
	total   int
	agg     *Aggregator
}

// NewTranslator creates a Translator feeding positives into agg. A total of
// zero means the number of checks is unknown.
func NewTranslator(total int, agg *Aggregator) *Translator {
	return &Translator{total: total, agg: agg}
}

// Translate classifies raw and returns the event for it, if any.
func (t *Translator) Translate(raw string) (session.LineEvent, bool) {
	text, kind := session.ClassifyLine(raw)
	if kind == session.LineNoise {
		return session.LineEvent{}, false
	}

	t.checked++
	if kind == session.LinePositive {
		t.agg.Add(text)
	}

	return session.LineEvent{Text: text, Checked: t.checked, Total: t.total}, true
}

// Checked returns the number of result lines seen so far.
func (t *Translator) Checked() int { return t.checked }
