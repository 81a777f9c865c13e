package appreciation

import (
	"sync"
	"time"

	"github.com/gamecodelab/gamecode/internal/profile"
)

// Service handles appreciation detection and generation
type Service struct {
	detector  *Detector
	generator *Generator
	now       func() time.Time

	// Track last appreciation per learner to avoid spam
	mu               sync.RWMutex
	lastAppreciation map[string]time.Time
}

// NewService creates a new appreciation service
func NewService() *Service {
	return &Service{
		detector:         NewDetector(),
		generator:        NewGenerator(),
		now:              time.Now,
		lastAppreciation: make(map[string]time.Time),
	}
}

// CheckAward evaluates an award and returns a message, or nil when nothing
// is worth saying right now
func (s *Service) CheckAward(a *profile.Award) *Message {
	best := s.detector.SelectBest(s.detector.Detect(a))
	if best == nil {
		return nil
	}

	if !s.shouldShow(a.LearnerID, best.Type) {
		return nil
	}

	msg := s.generator.Generate(best)
	if msg != nil {
		s.recordAppreciation(a.LearnerID)
	}
	return msg
}

// MinutesSinceLastAppreciation returns how long since the learner last saw
// a message, or -1 if never
func (s *Service) MinutesSinceLastAppreciation(learnerID string) int {
	s.mu.RLock()
	lastTime, exists := s.lastAppreciation[learnerID]
	s.mu.RUnlock()

	if !exists {
		return -1
	}
	return int(s.now().Sub(lastTime).Minutes())
}

// Forget drops a learner's history, for deleted guests
func (s *Service) Forget(learnerID string) {
	s.mu.Lock()
	delete(s.lastAppreciation, learnerID)
	s.mu.Unlock()
}

func (s *Service) shouldShow(learnerID string, t MomentType) bool {
	minutes := s.MinutesSinceLastAppreciation(learnerID)
	if minutes < 0 {
		return true
	}
	return ShouldAppreciate(minutes, Priority(t))
}

func (s *Service) recordAppreciation(learnerID string) {
	s.mu.Lock()
	s.lastAppreciation[learnerID] = s.now()
	s.mu.Unlock()
}
