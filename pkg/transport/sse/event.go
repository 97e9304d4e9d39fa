// Package sse streams hub lines to viewers as Server-Sent Events and
// follows such streams on the client side.
package sse

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Event names carried in the "event:" field. Log lines use the default
// (unnamed) event.
const (
	EventStatus = "status"

	StatusDegraded = "degraded"
	StatusOK       = "ok"
)

// Event is one SSE frame.
type Event struct {
	ID    string
	Name  string
	Data  string
	Retry time.Duration
}

// Seq returns the event ID as a line sequence number.
func (e Event) Seq() (uint64, bool) {
	if e.ID == "" {
		return 0, false
	}
	seq, err := strconv.ParseUint(e.ID, 10, 64)
	if err != nil {
		return 0, false
	}
	return seq, true
}

// newlines folds every SSE line terminator (CRLF, LF, bare CR) into LF.
var newlines = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// WriteEvent encodes ev onto w. Multi-line data is split across data fields.
func WriteEvent(w io.Writer, ev Event) error {
	var b strings.Builder
	if ev.Retry > 0 {
		fmt.Fprintf(&b, "retry: %d\n", ev.Retry.Milliseconds())
	}
	if ev.ID != "" {
		fmt.Fprintf(&b, "id: %s\n", ev.ID)
	}
	if ev.Name != "" {
		fmt.Fprintf(&b, "event: %s\n", ev.Name)
	}
	if ev.Data != "" || ev.Retry == 0 {
		for _, line := range strings.Split(newlines.Replace(ev.Data), "\n") {
			b.WriteString("data: ")
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}

// Decoder reads events from an SSE stream.
type Decoder struct {
	scanner *bufio.Scanner
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Decoder{scanner: s}
}

// Next returns the next complete event. Comment lines are skipped; a frame
// holding only a retry field is returned with empty Data. io.EOF means the
// stream ended cleanly between events.
func (d *Decoder) Next() (Event, error) {
	var (
		ev      Event
		data    []string
		started bool
	)
	for d.scanner.Scan() {
		line := d.scanner.Text()
		if line == "" {
			if !started {
				continue
			}
			ev.Data = strings.Join(data, "\n")
			return ev, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		started = true
		switch field {
		case "id":
			ev.ID = value
		case "event":
			ev.Name = value
		case "data":
			data = append(data, value)
		case "retry":
			if ms, err := strconv.Atoi(value); err == nil && ms >= 0 {
				ev.Retry = time.Duration(ms) * time.Millisecond
			}
		}
	}
	if err := d.scanner.Err(); err != nil {
		return Event{}, err
	}
	if started {
		return Event{}, io.ErrUnexpectedEOF
	}
	return Event{}, io.EOF
}
