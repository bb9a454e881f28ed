package interfaces

import (
	"context"

	"engage/pkg/types"
)

// Classifier is the external emotion classification collaborator. The core
// treats it as untrusted: whatever label it returns is validated against the
// closed emotion set before entering any session window, and a failure drops
// the sample without retry.
type Classifier interface {
	// Classify maps an opaque image payload to an emotion label.
	Classify(ctx context.Context, imagePayload []byte) (types.Emotion, error)
}
