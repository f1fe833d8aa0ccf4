package tracing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTracePhases(t *testing.T) {
	now := time.Unix(0, 0)
	tr := startAt("seal", func() time.Time { return now })

	end := tr.Phase("drain")
	now = now.Add(20 * time.Millisecond)
	end()
	end()

	end = tr.Phase("write")
	now = now.Add(50 * time.Millisecond)
	end()

	assert.Equal(t, []Phase{
		{Name: "drain", Duration: 20 * time.Millisecond},
		{Name: "write", Duration: 50 * time.Millisecond},
	}, tr.Phases())
	assert.Equal(t, []any{
		"trace", "seal",
		"drain_ms", int64(20),
		"write_ms", int64(50),
		"total_ms", int64(70),
	}, tr.LogAttrs())
}

func TestUnfinishedPhaseIsNotReported(t *testing.T) {
	tr := Start("seal")
	_ = tr.Phase("open")
	assert.Empty(t, tr.Phases())
	assert.GreaterOrEqual(t, tr.Elapsed(), time.Duration(0))
}
