package core

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		input string
		want  Severity
	}{
		{"2024-05-01 10:00:00,123 - main - ERROR - order rejected", SeverityError},
		{"2024-05-01 10:00:00,123 - main - WARNING - slow fill", SeverityWarning},
		{"2024-05-01 10:00:00,123 - main - INFO - connected", SeverityInfo},
		{"2024-05-01 10:00:00,123 - main - DEBUG - tick", SeverityDebug},
		{"ERROR and INFO on one line", SeverityError},
		{"INFO then WARNING", SeverityWarning},
		{"DEBUG INFO", SeverityInfo},
		{"plain text", SeverityNone},
		{"", SeverityNone},
		{"error in lowercase", SeverityNone},
		{"ERRORS are still errors", SeverityError},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Classify(tt.input); got != tt.want {
				t.Errorf("Classify(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestLogLineSeverity(t *testing.T) {
	l := LogLine{Seq: 1, Text: "x - WARNING - y"}
	if l.Severity() != SeverityWarning {
		t.Errorf("expected WARNING, got %s", l.Severity())
	}
}
