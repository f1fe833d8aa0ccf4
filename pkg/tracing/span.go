// Package tracing times the phases of a multi-step operation, such as
// sealing a segment, and reports them as structured log attributes.
package tracing

import (
	"sync"
	"time"
)

// Phase is one completed step of a Trace.
type Phase struct {
	Name     string
	Duration time.Duration
}

// Trace records consecutive or overlapping phases of one operation.
type Trace struct {
	name  string
	now   func() time.Time
	start time.Time

	mu     sync.Mutex
	phases []Phase
}

// Start begins a trace named name.
func Start(name string) *Trace {
	return startAt(name, time.Now)
}

func startAt(name string, now func() time.Time) *Trace {
	return &Trace{name: name, now: now, start: now()}
}

// Phase starts timing name and returns the function that ends it. Ending a
// phase twice records it once.
func (t *Trace) Phase(name string) func() {
	begin := t.now()
	var once sync.Once
	return func() {
		once.Do(func() {
			d := t.now().Sub(begin)
			t.mu.Lock()
			t.phases = append(t.phases, Phase{Name: name, Duration: d})
			t.mu.Unlock()
		})
	}
}

// Phases returns the completed phases in the order they ended.
func (t *Trace) Phases() []Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Phase(nil), t.phases...)
}

// Elapsed returns the time since Start.
func (t *Trace) Elapsed() time.Duration {
	return t.now().Sub(t.start)
}

// LogAttrs returns slog key/value pairs: the trace name, one "<phase>_ms"
// per phase and "total_ms".
func (t *Trace) LogAttrs() []any {
	phases := t.Phases()
	attrs := make([]any, 0, 2*len(phases)+4)
	attrs = append(attrs, "trace", t.name)
	for _, p := range phases {
		attrs = append(attrs, p.Name+"_ms", p.Duration.Milliseconds())
	}
	return append(attrs, "total_ms", t.Elapsed().Milliseconds())
}
