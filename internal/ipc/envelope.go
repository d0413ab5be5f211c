// Package ipc implements the one-shot message exchange between the dispatcher
// and a worker process: one Request in, one ResultEnvelope out, each carried
// in a single length-prefixed msgpack frame over a private pipe.
package ipc

import (
	"github.com/rshade/varbatch/internal/record"
)

// ProtocolVersion is the version of the Request/ResultEnvelope wire format.
// Workers echo the version they speak; a major mismatch is a crash.
const ProtocolVersion = "1.0.0"

// Faults asks a worker to misbehave in a controlled way. Each field names a
// record ID; the fault fires in whichever sub-chunk contains that record.
// The zero value injects nothing.
type Faults struct {
	// WarnOnID emits a diagnostic line without failing.
	WarnOnID string `msgpack:"warn_on_id,omitempty" yaml:"warn_on_id,omitempty"`
	// FatalOnID makes the annotator return an error.
	FatalOnID string `msgpack:"fatal_on_id,omitempty" yaml:"fatal_on_id,omitempty"`
	// PanicOnID makes the annotator panic.
	PanicOnID string `msgpack:"panic_on_id,omitempty" yaml:"panic_on_id,omitempty"`
	// CrashOnID makes the worker exit without writing a result.
	CrashOnID string `msgpack:"crash_on_id,omitempty" yaml:"crash_on_id,omitempty"`
	// GarbleOnID makes the worker write an undecodable result.
	GarbleOnID string `msgpack:"garble_on_id,omitempty" yaml:"garble_on_id,omitempty"`
}

// IsZero reports whether no fault is configured.
func (f Faults) IsZero() bool {
	return f == Faults{}
}

// Request is the single message the dispatcher sends to a worker.
type Request struct {
	ProtocolVersion string            `msgpack:"protocol_version"`
	Seq             int               `msgpack:"seq"`
	DispatchID      string            `msgpack:"dispatch_id"`
	Annotator       string            `msgpack:"annotator"`
	Options         map[string]string `msgpack:"options,omitempty"`
	Faults          Faults            `msgpack:"faults"`
	LogLevel        string            `msgpack:"log_level,omitempty"`
	Records         []record.Record   `msgpack:"records"`
}

// ResultEnvelope is the single message a worker sends back before exiting.
// Records is nil when annotation failed; Diagnostic and Fatal are empty when
// there is nothing to report.
type ResultEnvelope struct {
	WorkerPID       int             `msgpack:"worker_pid"`
	ProtocolVersion string          `msgpack:"protocol_version"`
	Seq             int             `msgpack:"seq"`
	Records         []record.Record `msgpack:"records"`
	Diagnostic      string          `msgpack:"diagnostic,omitempty"`
	Fatal           string          `msgpack:"fatal,omitempty"`
}

// Failed reports whether the worker reported a fatal annotation failure.
func (e *ResultEnvelope) Failed() bool {
	return e.Fatal != ""
}
