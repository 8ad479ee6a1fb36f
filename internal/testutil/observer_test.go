package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordingObserver_PreservesOrder(t *testing.T) {
	r := NewRecordingObserver()

	r.Observe("A-abc123")
	r.Observe("B-abc123")

	assert.Equal(t, []string{"A-abc123", "B-abc123"}, r.Values())
	assert.Equal(t, 2, r.Len())
}

func TestRecordingObserver_ValuesIsACopy(t *testing.T) {
	r := NewRecordingObserver()
	r.Observe("A")

	values := r.Values()
	values[0] = "mutated"

	assert.Equal(t, []string{"A"}, r.Values())
}

func TestRecordingObserver_WaitFor(t *testing.T) {
	r := NewRecordingObserver()

	go func() {
		time.Sleep(10 * time.Millisecond)
		r.Observe("A")
		r.Observe("B")
	}()

	require.True(t, r.WaitFor(2, 2*time.Second))
	assert.Equal(t, []string{"A", "B"}, r.Values())
}

func TestRecordingObserver_WaitForTimeout(t *testing.T) {
	r := NewRecordingObserver()
	r.Observe("A")

	assert.False(t, r.WaitFor(2, 20*time.Millisecond))
	assert.True(t, r.WaitFor(1, 20*time.Millisecond))
}
