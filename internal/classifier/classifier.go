// Package classifier provides a stand-in for the external emotion
// classification model. The real model is an external collaborator; this
// implementation produces weighted labels so the rest of the system can run
// end to end without it. The core validates its output either way.
package classifier

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"engage/pkg/types"
)

// Label weights mirror the distribution the production model was observed
// to emit on classroom footage.
var weights = []struct {
	emotion types.Emotion
	weight  float64
}{
	{types.EmotionFocused, 0.60},
	{types.EmotionConfused, 0.15},
	{types.EmotionBored, 0.15},
	{types.EmotionDistracted, 0.10},
}

// Weighted is a seedable weighted-choice classifier.
type Weighted struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewWeighted creates a classifier seeded from the clock.
func NewWeighted() *Weighted {
	return NewWeightedSeeded(time.Now().UnixNano())
}

// NewWeightedSeeded creates a classifier with a fixed seed for
// deterministic tests.
func NewWeightedSeeded(seed int64) *Weighted {
	return &Weighted{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// Classify returns a weighted label for the payload. An empty payload is a
// classification failure, not a guess.
func (w *Weighted) Classify(ctx context.Context, imagePayload []byte) (types.Emotion, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(imagePayload) == 0 {
		return "", ErrEmptyPayload
	}

	w.mu.Lock()
	roll := w.rng.Float64()
	w.mu.Unlock()

	cumulative := 0.0
	for _, entry := range weights {
		cumulative += entry.weight
		if roll < cumulative {
			return entry.emotion, nil
		}
	}
	return weights[len(weights)-1].emotion, nil
}
