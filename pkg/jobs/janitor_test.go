package jobs

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJanitor_Validation(t *testing.T) {
	_, err := NewJanitor(JanitorConfig{})
	assert.Error(t, err)

	m := newTestManager(t, okInvoker("s"), newFakeRegistry(), 1)
	_, err = NewJanitor(JanitorConfig{Manager: m, Schedule: "not a schedule"})
	assert.Error(t, err)
}

func TestSweepTerminal(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }

	m, err := NewManager(Config{
		Invoker:  okInvoker("s1"),
		Registry: newFakeRegistry(),
		Workers:  1,
		Clock:    clock,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	defer func() { _ = m.Close() }()

	id, err := m.Submit(SubmitRequest{ThreadID: "t1", WorkingDir: "/tmp", Message: "hi"})
	require.NoError(t, err)
	waitTerminal(t, m, id)

	// Within retention: kept
	assert.Equal(t, 0, m.SweepTerminal(time.Hour))
	_, err = m.Status(id)
	require.NoError(t, err)

	// Move the clock past the retention window
	now = now.Add(2 * time.Hour)
	assert.Equal(t, 1, m.SweepTerminal(time.Hour))

	_, err = m.Status(id)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestSweepTerminal_KeepsActiveJobs(t *testing.T) {
	now := time.Now()
	gate := newGateInvoker()

	m, err := NewManager(Config{
		Invoker:  gate,
		Registry: newFakeRegistry(),
		Workers:  1,
		Clock:    func() time.Time { return now },
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)

	idRunning, err := m.Submit(SubmitRequest{ThreadID: "t1", WorkingDir: "/tmp", Message: "m1"})
	require.NoError(t, err)
	gate.awaitStarted(t)
	idQueued, err := m.Submit(SubmitRequest{ThreadID: "t1", WorkingDir: "/tmp", Message: "m2"})
	require.NoError(t, err)

	now = now.Add(24 * time.Hour)
	assert.Equal(t, 0, m.SweepTerminal(time.Hour))

	_, err = m.Status(idRunning)
	assert.NoError(t, err)
	_, err = m.Status(idQueued)
	assert.NoError(t, err)

	close(gate.release)
	_ = m.Close()
}

func TestJanitor_StartStop(t *testing.T) {
	m := newTestManager(t, okInvoker("s"), newFakeRegistry(), 1)

	j, err := NewJanitor(JanitorConfig{
		Manager:   m,
		Schedule:  "@every 1h",
		Retention: time.Hour,
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)

	j.Start()
	j.Stop()
}
