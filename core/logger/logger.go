// Package logger is a standardized event logging framework for the
// shell: command dispatch, job transitions, and job-control failures
// are recorded as newline-delimited JSON.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Entry is one logged event. Exactly one of the payload fields is set,
// matching Kind.
type Entry struct {
	TimestampMicros int64  `json:"timestamp_micros"`
	Kind            string `json:"kind"`

	Dispatch   *DispatchEvent   `json:"dispatch,omitempty"`
	Job        *JobEvent        `json:"job,omitempty"`
	JobControl *JobControlEvent `json:"job_control,omitempty"`
}

// DispatchEvent records one command resolution.
type DispatchEvent struct {
	Name    string   `json:"name"`
	Argv    []string `json:"argv"`
	Builtin bool     `json:"builtin"`
}

// JobEvent records one job state transition.
type JobEvent struct {
	ID   int    `json:"id"`
	Pgid int    `json:"pgid"`
	From string `json:"from"`
	To   string `json:"to"`
}

// JobControlEvent records a non-fatal process-group or signal failure.
type JobControlEvent struct {
	Op    string `json:"op"`
	Error string `json:"error"`
}

// Recorder stores entries in an external sink.
type Recorder func(e *Entry) error

// Logger captures interpreter events through its Recorder.
type Logger struct {
	Record Recorder
}

// NewJSONLines returns a logger writing one JSON object per line to w.
func NewJSONLines(w io.Writer) *Logger {
	return &Logger{
		Record: func(e *Entry) error {
			raw, err := json.Marshal(e)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(w, string(raw))
			return err
		},
	}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{Record: func(*Entry) error { return nil }}
}

func (l *Logger) record(kind string, fill func(*Entry)) {
	if l == nil || l.Record == nil {
		return
	}
	e := &Entry{
		TimestampMicros: time.Now().UnixNano() / int64(time.Microsecond),
		Kind:            kind,
	}
	fill(e)
	// Logging never interrupts interpretation.
	_ = l.Record(e)
}

// CommandDispatch logs the resolution of one command.
func (l *Logger) CommandDispatch(name string, argv []string, builtin bool) {
	l.record("dispatch", func(e *Entry) {
		e.Dispatch = &DispatchEvent{Name: name, Argv: argv, Builtin: builtin}
	})
}

// JobTransition logs one job state change.
func (l *Logger) JobTransition(id, pgid int, from, to string) {
	l.record("job", func(e *Entry) {
		e.Job = &JobEvent{ID: id, Pgid: pgid, From: from, To: to}
	})
}

// JobControlError logs a failed signal or process-group operation.
func (l *Logger) JobControlError(op string, err error) {
	l.record("job_control", func(e *Entry) {
		e.JobControl = &JobControlEvent{Op: op, Error: err.Error()}
	})
}
