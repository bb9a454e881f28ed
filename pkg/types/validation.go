package types

import (
	"regexp"
)

// Compiled once at package initialization; identifier validation runs on
// every sample submission.
var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// IsValidID checks session and student identifier format: 1-64 characters,
// alphanumeric plus underscore/hyphen.
func IsValidID(id string) bool {
	if len(id) < 1 || len(id) > 64 {
		return false
	}
	return idRegex.MatchString(id)
}

// IsValidEmotion reports whether the label is a member of the closed set.
func IsValidEmotion(e Emotion) bool {
	switch e {
	case EmotionFocused, EmotionConfused, EmotionBored, EmotionDistracted:
		return true
	default:
		return false
	}
}

// ParseEmotion validates an incoming label string against the closed set.
// Classifier output passes through here as well: the classifier is untrusted
// and an out-of-set label is rejected like any other invalid input.
func ParseEmotion(s string) (Emotion, error) {
	e := Emotion(s)
	if !IsValidEmotion(e) {
		return "", ErrInvalidEmotion
	}
	return e, nil
}

// IsValidRole reports whether the role is one of student or faculty.
func IsValidRole(role string) bool {
	return role == RoleStudent || role == RoleFaculty
}

// Validate ensures the sample carries everything the aggregator needs.
func (s *Sample) Validate() error {
	if !IsValidID(s.SessionID) {
		return ErrInvalidSessionID
	}
	if !IsValidID(s.StudentID) {
		return ErrInvalidStudentID
	}
	if !IsValidEmotion(s.Emotion) {
		return ErrInvalidEmotion
	}
	if s.RecordedAt.IsZero() {
		return ErrMissingTimestamp
	}
	return nil
}
