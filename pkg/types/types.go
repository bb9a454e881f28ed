package types

import (
	"time"
)

// Emotion is one classified emotion observation label. The set is closed:
// every label entering the system (from clients or from the classifier) is
// validated against these four constants before it touches session state.
type Emotion string

const (
	EmotionFocused    Emotion = "Focused"
	EmotionConfused   Emotion = "Confused"
	EmotionBored      Emotion = "Bored"
	EmotionDistracted Emotion = "Distracted"
)

// Emotions lists the closed label set in priority order. The order matters:
// rounding residuals in a snapshot are assigned to the first label, so
// Focused absorbs the correction.
var Emotions = [4]Emotion{EmotionFocused, EmotionConfused, EmotionBored, EmotionDistracted}

// Realtime event types pushed to faculty observers.
const (
	EventLiveAnalyticsUpdate = "live_analytics_update"
	EventMembershipChanged   = "membership_changed"
	EventSystem              = "system"
)

// Membership change kinds.
const (
	MembershipJoined = "joined"
	MembershipLeft   = "left"
)

// Roles a connection may hold within a session. A connection belongs to at
// most one role per session.
const (
	RoleStudent = "student"
	RoleFaculty = "faculty"
)

// Sample is one classified emotion observation for one student at one point
// in time. Samples are transient: they are consumed into a session's
// aggregate window and not retained individually by the core.
type Sample struct {
	SessionID  string    `json:"session_id"`
	StudentID  string    `json:"student_id"`
	Emotion    Emotion   `json:"emotion"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Distribution holds the normalized percentage per label. Percentages are
// non-negative integers summing to exactly 100 whenever the window holds at
// least one sample.
type Distribution struct {
	Focused    int `json:"focused"`
	Confused   int `json:"confused"`
	Bored      int `json:"bored"`
	Distracted int `json:"distracted"`
}

// Sum returns the total of all four percentages.
func (d Distribution) Sum() int {
	return d.Focused + d.Confused + d.Bored + d.Distracted
}

// Snapshot is the aggregate view of one session's window pushed to faculty
// observers and returned from the snapshot endpoint.
type Snapshot struct {
	SessionID       string       `json:"session_id"`
	Distribution    Distribution `json:"distribution"`
	EngagementScore int          `json:"engagement_score"`
	SampleCount     int          `json:"sample_count"`
	ComputedAt      time.Time    `json:"computed_at"`
}

// MembershipEvent describes a student joining or leaving a session. Delivered
// to faculty observers of that session only.
type MembershipEvent struct {
	SessionID    string `json:"session_id"`
	ConnectionID string `json:"connection_id"`
	StudentID    string `json:"student_id,omitempty"`
	Event        string `json:"event"`
}

// Envelope is the wire frame for all pushed realtime messages.
type Envelope struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}
