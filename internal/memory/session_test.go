package memory

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compass-dev/compass/internal/consensus"
)

func entry(q, a string) MemoryEntry {
	return NewEntry(q, a, consensus.VerdictUnanimous, 0.95)
}

func TestContextEmptySession(t *testing.T) {
	m := NewSessionManager(0)
	assert.Empty(t, m.Context("fresh"))
}

func TestContextFormat(t *testing.T) {
	m := NewSessionManager(0)
	m.Record("s1", entry("What is 2+2?", "4"))
	m.Record("s1", entry("And 3+3?", "6"))

	want := "Previous conversation context:\n" +
		"Q: What is 2+2?\n" +
		"A: 4\n" +
		"\n" +
		"Q: And 3+3?\n" +
		"A: 6\n"
	assert.Equal(t, want, m.Context("s1"))
}

func TestContextUsesLastThreeEntries(t *testing.T) {
	m := NewSessionManager(0)
	for i := 1; i <= 5; i++ {
		m.Record("s1", entry(fmt.Sprintf("q%d", i), fmt.Sprintf("a%d", i)))
	}

	got := m.Context("s1")
	assert.NotContains(t, got, "q1")
	assert.NotContains(t, got, "q2")
	assert.Contains(t, got, "Q: q3")
	assert.Contains(t, got, "Q: q4")
	assert.Contains(t, got, "Q: q5")
}

func TestRecordEvictsOldest(t *testing.T) {
	m := NewSessionManager(0)
	for i := 0; i < MaxSessionQueries+3; i++ {
		m.Record("s1", entry(fmt.Sprintf("q%d", i), "a"))
	}

	history := m.History("s1")
	require.Len(t, history, MaxSessionQueries)
	assert.Equal(t, "q3", history[0].Question)
	assert.Equal(t, fmt.Sprintf("q%d", MaxSessionQueries+2), history[len(history)-1].Question)
}

func TestHistoryUnknownSession(t *testing.T) {
	m := NewSessionManager(0)
	assert.Nil(t, m.History("never-seen"))
	// History must not create the session as a side effect.
	assert.Equal(t, 0, m.Stats().ActiveSessions)
}

func TestReapRemovesIdleSessions(t *testing.T) {
	m := NewSessionManager(50 * time.Millisecond)
	m.Record("old", entry("q", "a"))
	time.Sleep(80 * time.Millisecond)
	m.Record("fresh", entry("q", "a"))

	reaped := m.Reap()
	assert.Equal(t, 1, reaped)
	assert.Nil(t, m.History("old"))
	assert.Len(t, m.History("fresh"), 1)
}

func TestStats(t *testing.T) {
	m := NewSessionManager(0)
	m.Record("a", entry("q1", "a1"))
	m.Record("a", entry("q2", "a2"))
	m.Record("b", entry("q3", "a3"))

	stats := m.Stats()
	assert.Equal(t, 2, stats.ActiveSessions)
	assert.Equal(t, 3, stats.TotalEntries)
}

func TestConcurrentRecordsStayConsistent(t *testing.T) {
	m := NewSessionManager(0)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			m.Record("shared", entry(fmt.Sprintf("q%d", n), "a"))
			_ = m.Context("shared")
		}(i)
	}
	wg.Wait()

	assert.Len(t, m.History("shared"), MaxSessionQueries)
}
