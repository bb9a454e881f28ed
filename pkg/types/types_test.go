package types

import (
	"strings"
	"testing"
	"time"
)

func TestIsValidID(t *testing.T) {
	valid := []string{"session1", "CS101", "a", "student_42", "lecture-2024", strings.Repeat("x", 64)}
	for _, id := range valid {
		if !IsValidID(id) {
			t.Errorf("IsValidID(%q) = false, want true", id)
		}
	}

	invalid := []string{"", "has spaces", "semi;colon", "slash/id", "dot.id", strings.Repeat("x", 65), "émotion"}
	for _, id := range invalid {
		if IsValidID(id) {
			t.Errorf("IsValidID(%q) = true, want false", id)
		}
	}
}

func TestParseEmotion(t *testing.T) {
	for _, e := range Emotions {
		got, err := ParseEmotion(string(e))
		if err != nil {
			t.Errorf("ParseEmotion(%q) failed: %v", e, err)
		}
		if got != e {
			t.Errorf("ParseEmotion(%q) = %q", e, got)
		}
	}

	// The set is closed and case sensitive.
	for _, s := range []string{"", "focused", "FOCUSED", "Happy", "Bored "} {
		if _, err := ParseEmotion(s); err != ErrInvalidEmotion {
			t.Errorf("ParseEmotion(%q) error = %v, want ErrInvalidEmotion", s, err)
		}
	}
}

func TestEmotionsPriorityOrder(t *testing.T) {
	// Focused must come first: it absorbs the rounding residual.
	if Emotions[0] != EmotionFocused {
		t.Errorf("Emotions[0] = %q, want Focused", Emotions[0])
	}
}

func TestIsValidRole(t *testing.T) {
	if !IsValidRole(RoleStudent) || !IsValidRole(RoleFaculty) {
		t.Error("student and faculty must both be valid roles")
	}
	for _, role := range []string{"", "admin", "Student", "teacher"} {
		if IsValidRole(role) {
			t.Errorf("IsValidRole(%q) = true, want false", role)
		}
	}
}

func TestSampleValidate(t *testing.T) {
	base := Sample{
		SessionID:  "session1",
		StudentID:  "student1",
		Emotion:    EmotionFocused,
		RecordedAt: time.Now(),
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("Valid sample rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Sample)
		want   error
	}{
		{"bad session", func(s *Sample) { s.SessionID = "" }, ErrInvalidSessionID},
		{"bad student", func(s *Sample) { s.StudentID = "no spaces allowed" }, ErrInvalidStudentID},
		{"bad emotion", func(s *Sample) { s.Emotion = "Sleepy" }, ErrInvalidEmotion},
		{"zero timestamp", func(s *Sample) { s.RecordedAt = time.Time{} }, ErrMissingTimestamp},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := base
			tc.mutate(&s)
			if err := s.Validate(); err != tc.want {
				t.Errorf("Validate() = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestDistributionSum(t *testing.T) {
	d := Distribution{Focused: 40, Confused: 30, Bored: 20, Distracted: 10}
	if d.Sum() != 100 {
		t.Errorf("Sum() = %d, want 100", d.Sum())
	}
	if (Distribution{}).Sum() != 0 {
		t.Error("Zero distribution should sum to 0")
	}
}
