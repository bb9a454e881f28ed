package classifier

import (
	"context"
	"testing"

	"engage/pkg/types"
)

func TestClassify_ReturnsOnlyKnownLabels(t *testing.T) {
	cls := NewWeightedSeeded(1)
	payload := []byte("frame-bytes")

	for i := 0; i < 1000; i++ {
		label, err := cls.Classify(context.Background(), payload)
		if err != nil {
			t.Fatalf("Classify failed: %v", err)
		}
		if !types.IsValidEmotion(label) {
			t.Fatalf("Classify returned out-of-set label %q", label)
		}
	}
}

func TestClassify_DeterministicWithFixedSeed(t *testing.T) {
	payload := []byte("frame-bytes")

	first := NewWeightedSeeded(42)
	second := NewWeightedSeeded(42)
	for i := 0; i < 100; i++ {
		a, err := first.Classify(context.Background(), payload)
		if err != nil {
			t.Fatalf("Classify failed: %v", err)
		}
		b, err := second.Classify(context.Background(), payload)
		if err != nil {
			t.Fatalf("Classify failed: %v", err)
		}
		if a != b {
			t.Fatalf("Seeded classifiers diverged at call %d: %q vs %q", i, a, b)
		}
	}
}

func TestClassify_FocusedDominatesOverManySamples(t *testing.T) {
	cls := NewWeightedSeeded(7)
	payload := []byte("frame-bytes")

	counts := make(map[types.Emotion]int)
	const n = 5000
	for i := 0; i < n; i++ {
		label, err := cls.Classify(context.Background(), payload)
		if err != nil {
			t.Fatalf("Classify failed: %v", err)
		}
		counts[label]++
	}

	// Focused carries 60% of the weight; anything under half over 5000 draws
	// would mean the weighting is broken, not unlucky.
	if counts[types.EmotionFocused] < n/2 {
		t.Errorf("Focused count = %d of %d, expected majority", counts[types.EmotionFocused], n)
	}
	for _, e := range types.Emotions {
		if counts[e] == 0 {
			t.Errorf("Label %q never appeared over %d draws", e, n)
		}
	}
}

func TestClassify_EmptyPayloadFails(t *testing.T) {
	cls := NewWeightedSeeded(1)

	if _, err := cls.Classify(context.Background(), nil); err != ErrEmptyPayload {
		t.Errorf("Classify(nil) error = %v, want ErrEmptyPayload", err)
	}
	if _, err := cls.Classify(context.Background(), []byte{}); err != ErrEmptyPayload {
		t.Errorf("Classify(empty) error = %v, want ErrEmptyPayload", err)
	}
}

func TestClassify_CancelledContextFails(t *testing.T) {
	cls := NewWeightedSeeded(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := cls.Classify(ctx, []byte("frame-bytes")); err == nil {
		t.Error("Classify should fail with a cancelled context")
	}
}
