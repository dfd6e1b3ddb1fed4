// internal/services/progress_service.go
package services

import (
	"context"
	"sync"
	"time"
)

// GenerationStatus is the state of a session's story generation
type GenerationStatus string

const (
	StatusIdle       GenerationStatus = "idle"
	StatusGenerating GenerationStatus = "generating"
	StatusCompleted  GenerationStatus = "completed"
	StatusFailed     GenerationStatus = "failed"
)

// ProgressUpdate is one status message pushed to subscribers
type ProgressUpdate struct {
	Status    GenerationStatus `json:"status"`
	Progress  int              `json:"progress"` // 0-100
	Message   string           `json:"message"`
	StoryID   int              `json:"story_id,omitempty"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// ProgressTracker follows the generations of one session. A tracker is
// reused: each Start begins a new run.
type ProgressTracker struct {
	TaskID string

	mutex       sync.Mutex
	state       ProgressUpdate
	startTime   time.Time
	subscribers map[chan ProgressUpdate]struct{}
}

// ProgressService keeps a tracker per session
type ProgressService struct {
	trackers map[string]*ProgressTracker
	mutex    sync.RWMutex
}

// NewProgressService creates an empty service
func NewProgressService() *ProgressService {
	return &ProgressService{
		trackers: make(map[string]*ProgressTracker),
	}
}

// Tracker returns the tracker for taskID, creating it if needed. An empty
// taskID gets a tracker nobody else can see.
func (s *ProgressService) Tracker(taskID string) *ProgressTracker {
	if s == nil || taskID == "" {
		return newProgressTracker(taskID)
	}

	s.mutex.RLock()
	tracker, exists := s.trackers[taskID]
	s.mutex.RUnlock()
	if exists {
		return tracker
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if tracker, exists := s.trackers[taskID]; exists {
		return tracker
	}
	tracker = newProgressTracker(taskID)
	s.trackers[taskID] = tracker
	return tracker
}

// GetTracker returns an existing tracker
func (s *ProgressService) GetTracker(taskID string) (*ProgressTracker, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	tracker, exists := s.trackers[taskID]
	return tracker, exists
}

// Len returns the number of live trackers
func (s *ProgressService) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.trackers)
}

func newProgressTracker(taskID string) *ProgressTracker {
	now := time.Now()
	return &ProgressTracker{
		TaskID:      taskID,
		state:       ProgressUpdate{Status: StatusIdle, UpdatedAt: now},
		startTime:   now,
		subscribers: make(map[chan ProgressUpdate]struct{}),
	}
}

// Start begins a new generation run
func (t *ProgressTracker) Start(message string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.startTime = time.Now()
	t.state = ProgressUpdate{Status: StatusGenerating, Progress: 0, Message: message}
	t.publishLocked()
}

// UpdateProgress moves a running generation forward. Progress never goes
// backwards.
func (t *ProgressTracker) UpdateProgress(progress int, message string, storyID int) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if progress > t.state.Progress {
		t.state.Progress = progress
	}
	if message != "" {
		t.state.Message = message
	}
	if storyID != 0 {
		t.state.StoryID = storyID
	}
	t.publishLocked()
}

// Complete marks the run finished
func (t *ProgressTracker) Complete(message string, storyID int) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.state.Status = StatusCompleted
	t.state.Progress = 100
	t.state.Message = message
	if storyID != 0 {
		t.state.StoryID = storyID
	}
	t.publishLocked()
}

// Fail marks the run failed
func (t *ProgressTracker) Fail(message string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.state.Status = StatusFailed
	t.state.Message = message
	t.publishLocked()
}

// Snapshot returns the current state
func (t *ProgressTracker) Snapshot() ProgressUpdate {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.state
}

// Elapsed returns the time since the current run started
func (t *ProgressTracker) Elapsed() time.Duration {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return time.Since(t.startTime)
}

// Subscribe returns a channel receiving every update, starting with the
// current state. Slow subscribers miss updates instead of blocking.
func (t *ProgressTracker) Subscribe() chan ProgressUpdate {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	subscriber := make(chan ProgressUpdate, 10)
	t.subscribers[subscriber] = struct{}{}
	subscriber <- t.state

	return subscriber
}

// Unsubscribe removes and closes subscriber
func (t *ProgressTracker) Unsubscribe(subscriber chan ProgressUpdate) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if _, ok := t.subscribers[subscriber]; !ok {
		return
	}
	delete(t.subscribers, subscriber)
	close(subscriber)
}

func (t *ProgressTracker) publishLocked() {
	t.state.UpdatedAt = time.Now()
	for subscriber := range t.subscribers {
		select {
		case subscriber <- t.state:
		default:
		}
	}
}

// CleanupCompletedTasks drops trackers that are not running, have no
// subscribers and were last updated more than maxAge ago
func (s *ProgressService) CleanupCompletedTasks(maxAge time.Duration) int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := time.Now()
	removed := 0
	for id, tracker := range s.trackers {
		tracker.mutex.Lock()
		idle := tracker.state.Status != StatusGenerating && len(tracker.subscribers) == 0
		isOld := now.Sub(tracker.state.UpdatedAt) > maxAge
		tracker.mutex.Unlock()

		if idle && isOld {
			delete(s.trackers, id)
			removed++
		}
	}
	return removed
}

// RunCleanup calls CleanupCompletedTasks every interval until ctx is done
func (s *ProgressService) RunCleanup(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.CleanupCompletedTasks(maxAge)
		}
	}
}
