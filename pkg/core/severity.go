package core

import "strings"

// Severity is the display class of a log line, derived from its text.
type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
	SeverityInfo    Severity = "INFO"
	SeverityDebug   Severity = "DEBUG"
	SeverityNone    Severity = "NONE"
)

// classifyOrder is the match priority; the first keyword found wins.
var classifyOrder = []Severity{SeverityError, SeverityWarning, SeverityInfo, SeverityDebug}

// Classify maps raw log text to a severity by keyword presence.
func Classify(text string) Severity {
	for _, sev := range classifyOrder {
		if strings.Contains(text, string(sev)) {
			return sev
		}
	}
	return SeverityNone
}
