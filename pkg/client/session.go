// Package client is the Go counterpart of the browser-side slides client:
// a REST client, a session/job state machine, and a reconnecting
// progress-channel subscriber.
package client

import "sync"

// SessionState is the client-side lifecycle of one build.
type SessionState string

const (
	StateIdle       SessionState = "idle"
	StateGenerating SessionState = "generating"
	StateCompleted  SessionState = "completed"
	StateError      SessionState = "error"
)

// Session tracks one build job. Completion is first-signal-wins: whichever
// of the HTTP response or the websocket event lands first settles the
// session, and later duplicates are no-ops.
type Session struct {
	mu           sync.Mutex
	state        SessionState
	jobID        string
	progress     int
	resultURL    string
	errorMessage string
}

// Snapshot is a point-in-time copy of the session for rendering.
type Snapshot struct {
	State        SessionState
	JobID        string
	Progress     int
	ResultURL    string
	ErrorMessage string
}

// NewSession starts in the idle state.
func NewSession() *Session {
	return &Session{state: StateIdle}
}

// Start enters generating for a new job, clearing prior error and result.
func (s *Session) Start(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateGenerating
	s.jobID = jobID
	s.progress = 0
	s.resultURL = ""
	s.errorMessage = ""
}

// SetProgress records progress clamped to [0,100]. Updates are ignored
// outside the generating state and never regress.
func (s *Session) SetProgress(value int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateGenerating {
		return
	}
	if value < 0 {
		value = 0
	}
	if value > 100 {
		value = 100
	}
	if value > s.progress {
		s.progress = value
	}
}

// Complete settles the session as completed and forces progress to 100.
// No-op once the session is terminal.
func (s *Session) Complete(resultURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateCompleted || s.state == StateError {
		return
	}
	s.state = StateCompleted
	s.progress = 100
	s.resultURL = resultURL
}

// Fail settles the session as errored. No-op once the session is terminal.
func (s *Session) Fail(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateCompleted || s.state == StateError {
		return
	}
	s.state = StateError
	s.errorMessage = message
}

// Reset returns to idle, dropping all job state.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateIdle
	s.jobID = ""
	s.progress = 0
	s.resultURL = ""
	s.errorMessage = ""
}

// Snapshot returns a copy of the current session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		State:        s.state,
		JobID:        s.jobID,
		Progress:     s.progress,
		ResultURL:    s.resultURL,
		ErrorMessage: s.errorMessage,
	}
}

// JobID reports the job the session currently tracks.
func (s *Session) JobID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobID
}
