// Package sensor is the acquisition boundary. The telemetry core never
// talks to probe hardware directly; it sees one Source handle, owned by the
// caller and passed in by reference so tests substitute fakes.
package sensor

import (
	"github.com/carbonready/fieldnode/internal/reading"
)

// Source produces one Reading per acquisition cycle. Acquire blocks and may
// take seconds while probes stabilize.
type Source interface {
	Acquire() (reading.Reading, error)
}

// SourceFunc adapts a plain function to Source.
type SourceFunc func() (reading.Reading, error)

func (f SourceFunc) Acquire() (reading.Reading, error) { return f() }
