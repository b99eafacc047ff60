package presence

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/hearth-core/internal/automation"
	"github.com/nerrad567/hearth-core/internal/infrastructure/mqtt"
)

// Subscriber is the slice of the MQTT client the trackers need.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Logger is the minimal logging interface the trackers need.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// presencePayload is the wire form of a presence event.
type presencePayload struct {
	Present  bool   `json:"present"`
	Location string `json:"location,omitempty"`
}

// Tracker maintains the latest presence state per person from MQTT
// presence events. Implements automation.PresenceSource.
//
// Presence topics are retained, so a restart replays the latest state
// for each person as soon as the subscription lands.
type Tracker struct {
	mu     sync.RWMutex
	people map[string]automation.PresenceState
	logger Logger
}

// NewTracker creates a presence tracker.
func NewTracker() *Tracker {
	return &Tracker{
		people: make(map[string]automation.PresenceState),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger used by the tracker.
func (t *Tracker) SetLogger(logger Logger) {
	if logger != nil {
		t.logger = logger
	}
}

// Start subscribes to presence events on the given topic pattern
// (e.g. "hearth/presence/+").
func (t *Tracker) Start(sub Subscriber, topicPattern string, qos byte) error {
	if err := sub.Subscribe(topicPattern, qos, t.handleMessage); err != nil {
		return fmt.Errorf("subscribing to presence events: %w", err)
	}
	t.logger.Info("presence tracker started", "topic", topicPattern)
	return nil
}

// handleMessage updates a person's state from a presence event.
// The person ID is the final topic segment.
func (t *Tracker) handleMessage(topic string, payload []byte) error {
	personID := topic[strings.LastIndex(topic, "/")+1:]
	if personID == "" {
		return fmt.Errorf("presence topic %q has no person segment", topic)
	}

	var event presencePayload
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("decoding presence event for %s: %w", personID, err)
	}

	t.mu.Lock()
	t.people[personID] = automation.PresenceState{
		Present:   event.Present,
		Location:  event.Location,
		ChangedAt: time.Now().UTC(),
	}
	t.mu.Unlock()

	t.logger.Debug("presence updated",
		"person_id", personID, "present", event.Present, "location", event.Location)
	return nil
}

// PresenceStates returns a copy of the current presence map.
// Implements automation.PresenceSource.
func (t *Tracker) PresenceStates() map[string]automation.PresenceState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	states := make(map[string]automation.PresenceState, len(t.people))
	for id, s := range t.people {
		states[id] = s
	}
	return states
}

// Set records a presence state directly, bypassing MQTT. Used by tests
// and diagnostics.
func (t *Tracker) Set(personID string, present bool, location string) {
	t.mu.Lock()
	t.people[personID] = automation.PresenceState{
		Present:   present,
		Location:  location,
		ChangedAt: time.Now().UTC(),
	}
	t.mu.Unlock()
}

// moodPayload is the wire form of a mood update. A bare string payload
// is also accepted.
type moodPayload struct {
	Mood string `json:"mood"`
}

// MoodTracker maintains the current household mood from MQTT.
// Implements automation.MoodSource.
type MoodTracker struct {
	mu     sync.RWMutex
	mood   string
	logger Logger
}

// NewMoodTracker creates a mood tracker.
func NewMoodTracker() *MoodTracker {
	return &MoodTracker{logger: noopLogger{}}
}

// SetLogger sets the logger used by the tracker.
func (m *MoodTracker) SetLogger(logger Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// Start subscribes to mood updates on the given topic.
func (m *MoodTracker) Start(sub Subscriber, topic string, qos byte) error {
	if err := sub.Subscribe(topic, qos, m.handleMessage); err != nil {
		return fmt.Errorf("subscribing to mood updates: %w", err)
	}
	m.logger.Info("mood tracker started", "topic", topic)
	return nil
}

// handleMessage updates the current mood. Accepts either a JSON object
// with a "mood" field or a bare string.
func (m *MoodTracker) handleMessage(_ string, payload []byte) error {
	var mood string

	var obj moodPayload
	if err := json.Unmarshal(payload, &obj); err == nil && obj.Mood != "" {
		mood = obj.Mood
	} else {
		mood = strings.TrimSpace(strings.Trim(string(payload), `"`))
	}

	m.mu.Lock()
	m.mood = mood
	m.mu.Unlock()

	m.logger.Info("mood changed", "mood", mood)
	return nil
}

// CurrentMood returns the current mood, or "" when none is set.
// Implements automation.MoodSource.
func (m *MoodTracker) CurrentMood() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mood
}

// SetMood records the mood directly, bypassing MQTT.
func (m *MoodTracker) SetMood(mood string) {
	m.mu.Lock()
	m.mood = mood
	m.mu.Unlock()
}
