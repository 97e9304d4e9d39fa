package core

import "time"

// LogLine is a single line of log output with its global sequence number.
// Values are never mutated after the tailer creates them.
type LogLine struct {
	Seq        uint64    `json:"seq"`
	Text       string    `json:"text"`
	ProducedAt time.Time `json:"produced_at"`
}

// Severity returns the classification of the line's text.
func (l LogLine) Severity() Severity {
	return Classify(l.Text)
}
