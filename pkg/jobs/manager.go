package jobs

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harun/loom/internal/observability"
	"github.com/harun/loom/pkg/invoker"
	"github.com/rs/zerolog"
)

// SessionRegistry is the durable per-thread session mapping the manager
// reads before and writes after each invocation. *store.Store satisfies it.
type SessionRegistry interface {
	// SessionID returns the thread's session id; ok is false when absent
	SessionID(threadID string) (string, bool, error)

	// RecordExchange persists the renewed session id and both conversation
	// turns of a successfully completed job
	RecordExchange(threadID, sessionID, userMessage, assistantMessage string) error
}

// Clock supplies timestamps; injected for deterministic tests.
type Clock func() time.Time

// SubmitRequest describes one message submission.
type SubmitRequest struct {
	ThreadID   string
	WorkingDir string
	Message    string
}

// Config holds job manager configuration
type Config struct {
	Invoker  invoker.Invoker
	Registry SessionRegistry

	// Workers bounds concurrently running external processes
	Workers int

	// MaxQueuePerThread rejects submissions once a thread queue is this deep
	MaxQueuePerThread int

	// MaxQueuedTotal rejects submissions once this many jobs are queued globally
	MaxQueuedTotal int

	// InvokeTimeout is the per-invocation hard timeout
	InvokeTimeout time.Duration

	Clock  Clock
	Logger zerolog.Logger
}

// lane holds one thread's FIFO queue. A lane with running set has exactly
// one job executing, which is the per-thread serialization invariant.
type lane struct {
	queue   []*job
	running bool
}

// Manager accepts submissions, dispatches eligible jobs to a bounded
// worker pool and tracks job state until the janitor sweeps it.
type Manager struct {
	invoker       invoker.Invoker
	registry      SessionRegistry
	workers       int
	maxPerThread  int
	maxTotal      int
	invokeTimeout time.Duration
	clock         Clock
	logger        zerolog.Logger

	mu           sync.RWMutex
	jobs         map[string]*job
	lanes        map[string]*lane
	queuedTotal  int
	runningCount int
	seq          uint64
	closed       bool

	eventMu  sync.RWMutex
	handlers []EventHandler

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager creates a new job manager
func NewManager(cfg Config) (*Manager, error) {
	observability.EnsureRegistered()

	if cfg.Invoker == nil {
		return nil, fmt.Errorf("invoker is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("session registry is required")
	}
	if cfg.Workers <= 0 {
		return nil, fmt.Errorf("workers must be positive, got %d", cfg.Workers)
	}
	if cfg.MaxQueuePerThread <= 0 {
		cfg.MaxQueuePerThread = 16
	}
	if cfg.MaxQueuedTotal <= 0 {
		cfg.MaxQueuedTotal = 256
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		invoker:       cfg.Invoker,
		registry:      cfg.Registry,
		workers:       cfg.Workers,
		maxPerThread:  cfg.MaxQueuePerThread,
		maxTotal:      cfg.MaxQueuedTotal,
		invokeTimeout: cfg.InvokeTimeout,
		clock:         cfg.Clock,
		logger:        cfg.Logger.With().Str("component", "jobs").Logger(),
		jobs:          make(map[string]*job),
		lanes:         make(map[string]*lane),
		ctx:           ctx,
		cancel:        cancel,
	}

	m.logger.Info().
		Int("workers", cfg.Workers).
		Int("maxQueuePerThread", m.maxPerThread).
		Int("maxQueuedTotal", m.maxTotal).
		Msg("Job manager initialized")

	return m, nil
}

// Submit enqueues a message for its thread and returns the job id
// immediately. It never performs the invocation inline; its runtime does
// not depend on queue depth.
func (m *Manager) Submit(req SubmitRequest) (string, error) {
	if req.ThreadID == "" || req.WorkingDir == "" || strings.TrimSpace(req.Message) == "" {
		return "", fmt.Errorf("%w: thread id, working dir and message are required", ErrInvalidSubmission)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", ErrManagerClosed
	}

	ls := m.lanes[req.ThreadID]
	if ls == nil {
		ls = &lane{}
		m.lanes[req.ThreadID] = ls
	}

	if len(ls.queue) >= m.maxPerThread || m.queuedTotal >= m.maxTotal {
		m.mu.Unlock()
		observability.RecordJobSubmitted(false)
		return "", fmt.Errorf("%w: thread %s", ErrCapacityExceeded, req.ThreadID)
	}

	m.seq++
	j := &job{
		id:         uuid.New().String(),
		threadID:   req.ThreadID,
		workingDir: req.WorkingDir,
		message:    req.Message,
		seq:        m.seq,
		status:     StatusQueued,
		createdAt:  m.clock(),
	}
	m.jobs[j.id] = j
	ls.queue = append(ls.queue, j)
	m.queuedTotal++
	snap := j.snapshot()
	queued := m.queuedTotal
	m.mu.Unlock()

	observability.RecordJobSubmitted(true)
	observability.SetJobsQueued(queued)

	m.logger.Debug().
		Str("jobId", j.id).
		Str("threadId", req.ThreadID).
		Int("queuedTotal", queued).
		Msg("Job submitted")

	m.emit(EventQueued, snap)
	m.dispatch()

	return j.id, nil
}

// Status returns a read-only snapshot of a job. Unknown ids yield
// ErrJobNotFound, distinct from any job-level failure.
func (m *Manager) Status(jobID string) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.jobs[jobID]
	if !ok {
		return Snapshot{}, ErrJobNotFound
	}
	return j.snapshot(), nil
}

// HasActiveJobs reports whether any of the given threads has a queued or
// running job. The workspace layer consults this before deletions.
func (m *Manager) HasActiveJobs(threadIDs ...string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, id := range threadIDs {
		if ls, ok := m.lanes[id]; ok && (ls.running || len(ls.queue) > 0) {
			return true
		}
	}
	return false
}

// Stats returns current queue counters.
func (m *Manager) Stats() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]int{
		"queued":  m.queuedTotal,
		"running": m.runningCount,
		"workers": m.workers,
	}
}

// dispatch hands eligible jobs to free workers. A job is eligible only if
// its thread has no running job; among eligible lanes the one whose head
// job arrived first wins. Called after every submission and completion.
func (m *Manager) dispatch() {
	var started []*job

	m.mu.Lock()
	for m.runningCount < m.workers {
		var (
			next     *job
			nextLane *lane
		)
		for _, ls := range m.lanes {
			if ls.running || len(ls.queue) == 0 {
				continue
			}
			if next == nil || ls.queue[0].seq < next.seq {
				next = ls.queue[0]
				nextLane = ls
			}
		}
		if next == nil {
			break
		}

		nextLane.queue = nextLane.queue[1:]
		nextLane.running = true
		now := m.clock()
		next.status = StatusRunning
		next.startedAt = &now
		m.queuedTotal--
		m.runningCount++
		started = append(started, next)
	}
	queued, running := m.queuedTotal, m.runningCount
	m.mu.Unlock()

	observability.SetJobsQueued(queued)
	observability.SetJobsRunning(running)

	for _, j := range started {
		m.logger.Debug().
			Str("jobId", j.id).
			Str("threadId", j.threadID).
			Int("running", running).
			Msg("Job started")
		m.emit(EventStarted, j.snapshot())
		m.wg.Add(1)
		go m.run(j)
	}
}

// run executes one job to its terminal state. Invocation errors are
// recorded on the job, never propagated.
func (m *Manager) run(j *job) {
	defer m.wg.Done()

	sessionID, _, err := m.registry.SessionID(j.threadID)
	if err != nil {
		m.complete(j, "", invoker.KindInternal, fmt.Sprintf("failed to load session: %v", err))
		return
	}

	res, err := m.invoker.Invoke(m.ctx, invoker.Request{
		WorkingDir: j.workingDir,
		SessionID:  sessionID,
		Message:    j.message,
		Timeout:    m.invokeTimeout,
	})
	if err != nil {
		m.complete(j, "", invoker.KindOf(err), err.Error())
		return
	}

	// Session registry is written only on success; a failed job above
	// leaves the previous session id in place.
	if err := m.registry.RecordExchange(j.threadID, res.SessionID, j.message, res.Response); err != nil {
		m.complete(j, "", invoker.KindInternal, fmt.Sprintf("failed to persist session: %v", err))
		return
	}

	m.complete(j, res.Response, "", "")
}

// complete transitions a job to its terminal state and frees its lane.
func (m *Manager) complete(j *job, result string, kind invoker.Kind, detail string) {
	m.mu.Lock()
	now := m.clock()
	if detail == "" {
		j.status = StatusDone
		j.result = result
	} else {
		j.status = StatusFailed
		j.errKind = kind
		j.errDetail = detail
	}
	j.completedAt = &now

	ls := m.lanes[j.threadID]
	ls.running = false
	if len(ls.queue) == 0 {
		delete(m.lanes, j.threadID)
	}
	m.runningCount--
	running := m.runningCount
	snap := j.snapshot()
	m.mu.Unlock()

	duration := now.Sub(snap.CreatedAt)
	if snap.StartedAt != nil {
		duration = now.Sub(*snap.StartedAt)
	}
	observability.RecordJobCompletion(string(snap.Status), duration)
	observability.SetJobsRunning(running)

	if snap.Status == StatusDone {
		m.logger.Info().
			Str("jobId", snap.ID).
			Str("threadId", snap.ThreadID).
			Dur("duration", duration).
			Msg("Job completed")
	} else {
		m.logger.Error().
			Str("jobId", snap.ID).
			Str("threadId", snap.ThreadID).
			Str("errorKind", string(snap.ErrorKind)).
			Str("error", snap.Error).
			Msg("Job failed")
	}

	m.emit(EventCompleted, snap)
	m.dispatch()
}

// SweepTerminal deletes terminal jobs older than the retention window and
// returns how many were removed.
func (m *Manager) SweepTerminal(olderThan time.Duration) int {
	cutoff := m.clock().Add(-olderThan)

	m.mu.Lock()
	var swept int
	for id, j := range m.jobs {
		if j.status.Terminal() && j.completedAt != nil && j.completedAt.Before(cutoff) {
			delete(m.jobs, id)
			swept++
		}
	}
	m.mu.Unlock()

	if swept > 0 {
		observability.RecordJobsSwept(swept)
		m.logger.Debug().Int("swept", swept).Msg("Terminal jobs swept")
	}
	return swept
}

// Close stops accepting submissions, fails all queued jobs and waits for
// running invocations to finish (their contexts are cancelled).
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true

	var rejected []Snapshot
	now := m.clock()
	for threadID, ls := range m.lanes {
		for _, j := range ls.queue {
			j.status = StatusFailed
			j.errKind = invoker.KindInternal
			j.errDetail = "job manager shutting down"
			t := now
			j.completedAt = &t
			m.queuedTotal--
			rejected = append(rejected, j.snapshot())
		}
		ls.queue = nil
		if !ls.running {
			delete(m.lanes, threadID)
		}
	}
	m.mu.Unlock()

	for _, snap := range rejected {
		m.emit(EventCompleted, snap)
	}

	m.cancel()
	m.wg.Wait()

	m.logger.Info().Int("rejected", len(rejected)).Msg("Job manager closed")
	return nil
}
