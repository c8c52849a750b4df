// Package sessions implements the Session Store: an append-only per-session
// chat history with rolling-window summarization.
package sessions

import (
	"fmt"
	"strings"
	"sync"

	"github.com/omegaflow/agentcore/internal/models"
)

// WindowPolicy bounds how many live messages a session keeps before
// draining the oldest into a summary segment.
type WindowPolicy struct {
	High int
	Low  int
}

// Session holds one conversation's summaries and live message buffer.
type Session struct {
	ID        string
	Summaries []models.SummarySegment
	Live      []models.ChatMessage
	// Hint is the one-shot policy hint left for the next turn, if any.
	Hint *models.PolicyHint
}

// Store is the Session Store's in-memory core. An optional Backend gives it
// cross-restart durability.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	policy   WindowPolicy
	backend  Backend
}

// Backend persists session snapshots keyed by session-id. The reference
// implementation is the sqlite-backed store in sqlitestore.go; it is
// optional and failures never block the in-memory path.
type Backend interface {
	Save(sessionID string, s *Session) error
	Load(sessionID string) (*Session, bool, error)
}

// NewStore constructs a Store. backend may be nil.
func NewStore(policy WindowPolicy, backend Backend) *Store {
	return &Store{sessions: make(map[string]*Session), policy: policy, backend: backend}
}

// SessionKey composes a session-id from a channel and a transport-specific
// partition key, e.g. "telegram:group:42:1001".
func SessionKey(channel, partitionKey string) string {
	return channel + ":" + partitionKey
}

func (s *Store) getOrCreate(sessionID string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		sess = &Session{ID: sessionID}
		s.sessions[sessionID] = sess
	}
	return sess
}

// Append adds msg to sessionID's live history, draining the window if it has
// grown past the high-water mark.
func (s *Store) Append(sessionID string, msg models.ChatMessage) {
	sess := s.getOrCreate(sessionID)
	s.mu.Lock()
	sess.Live = append(sess.Live, msg)
	needsDrain := s.policy.High > 0 && len(sess.Live) > s.policy.High
	s.mu.Unlock()
	if needsDrain {
		drainCount := len(sess.Live) - s.policy.Low
		if drainCount > 0 {
			_, _ = s.DrainAndSummarize(sessionID, drainCount)
		}
	}
}

// Load returns the prompt-ready sequence: summaries rendered as system
// messages, followed by the live buffer.
func (s *Store) Load(sessionID string) []models.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	out := make([]models.ChatMessage, 0, len(sess.Summaries)+len(sess.Live))
	for _, seg := range sess.Summaries {
		out = append(out, seg.ToMessage())
	}
	out = append(out, sess.Live...)
	return out
}

const (
	maxIntentChars     = 180
	maxExperienceChars = 220
)

var errorIndicators = []string{"error", "failed", "exception", "panic", "timeout"}

// DrainAndSummarize removes the oldest drainCount live messages and replaces
// them with one synthetic summary segment. The segment's intent is the
// first user message in the drained window, its experience is the joined
// assistant responses, and its outcome is "error" if any drained message's
// content contains an error-indicator substring.
func (s *Store) DrainAndSummarize(sessionID string, drainCount int) (models.SummarySegment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return models.SummarySegment{}, fmt.Errorf("sessions: unknown session %q", sessionID)
	}
	if drainCount <= 0 {
		return models.SummarySegment{}, fmt.Errorf("sessions: drainCount must be positive")
	}
	if drainCount > len(sess.Live) {
		drainCount = len(sess.Live)
	}
	window := sess.Live[:drainCount]
	sess.Live = sess.Live[drainCount:]

	var intent, experience strings.Builder
	toolCalls := 0
	outcome := models.OutcomeCompleted
	for _, m := range window {
		lower := strings.ToLower(m.Content)
		for _, ind := range errorIndicators {
			if strings.Contains(lower, ind) {
				outcome = models.OutcomeError
			}
		}
		toolCalls += len(m.ToolCalls)
		switch m.Role {
		case models.RoleUser:
			if intent.Len() == 0 {
				intent.WriteString(m.Content)
			}
		case models.RoleAssistant:
			if experience.Len() > 0 {
				experience.WriteString(" ")
			}
			experience.WriteString(m.Content)
		}
	}

	summaryText := fmt.Sprintf("intent=%s experience=%s outcome=%s",
		truncate(intent.String(), maxIntentChars),
		truncate(experience.String(), maxExperienceChars),
		outcome)

	seg := models.SummarySegment{
		SummaryText:   summaryText,
		TurnCount:     len(window),
		ToolCallCount: toolCalls,
		CreatedAtMs:   nowMs(),
	}
	sess.Summaries = append(sess.Summaries, seg)

	if s.backend != nil {
		_ = s.backend.Save(sessionID, sess)
	}
	return seg, nil
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

// Reset clears both summaries and live history for sessionID.
func (s *Store) Reset(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = &Session{ID: sessionID}
}

// Resume reinstates sessionID from Backend if one is configured and a
// snapshot exists; it is a no-op otherwise.
func (s *Store) Resume(sessionID string) error {
	if s.backend == nil {
		return nil
	}
	sess, ok, err := s.backend.Load(sessionID)
	if err != nil {
		return fmt.Errorf("sessions: resume %s: %w", sessionID, err)
	}
	if !ok {
		return nil
	}
	s.mu.Lock()
	s.sessions[sessionID] = sess
	s.mu.Unlock()
	return nil
}

// SetHint installs the one-shot policy hint for sessionID's next turn.
func (s *Store) SetHint(sessionID string, hint *models.PolicyHint) {
	sess := s.getOrCreate(sessionID)
	s.mu.Lock()
	sess.Hint = hint
	s.mu.Unlock()
}

// TakeHint returns and clears sessionID's pending policy hint, if any.
func (s *Store) TakeHint(sessionID string) *models.PolicyHint {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok || sess.Hint == nil {
		return nil
	}
	hint := sess.Hint
	sess.Hint = nil
	return hint
}
