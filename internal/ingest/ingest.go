package ingest

import (
	"context"
	"fmt"
	"log"
	"time"

	"engage/internal/aggregator"
	"engage/internal/registry"
	"engage/pkg/interfaces"
	"engage/pkg/types"
)

// Publisher pushes aggregate snapshots to a session's faculty room. Declared
// locally so tests can record publishes without a transport.
type Publisher interface {
	Publish(sessionID string, snapshot *types.Snapshot)
}

// SubmitRequest is one inbound emotion sample. Exactly one of EmotionLabel
// or ImagePayload is expected; when both are present the label wins and the
// payload is ignored.
type SubmitRequest struct {
	SessionID    string
	StudentID    string
	EmotionLabel string
	ImagePayload []byte
}

// Ingestor validates and timestamps incoming samples, routes them to the
// session's window, forwards an archival copy to the sink, and publishes the
// refreshed snapshot to the faculty room.
type Ingestor struct {
	registry    *registry.Registry
	aggregator  *aggregator.Aggregator
	publisher   Publisher
	classifier  interfaces.Classifier
	sink        interfaces.SampleSink
	rateLimiter *RateLimiter
}

// NewIngestor creates an ingestor. The classifier and sink are optional
// collaborators: without a classifier, image-only submissions fail
// classification; without a sink, samples are simply not archived.
func NewIngestor(reg *registry.Registry, agg *aggregator.Aggregator, pub Publisher, classifier interfaces.Classifier, sink interfaces.SampleSink, samplesPerMinute int) *Ingestor {
	return &Ingestor{
		registry:    reg,
		aggregator:  agg,
		publisher:   pub,
		classifier:  classifier,
		sink:        sink,
		rateLimiter: NewRateLimiter(samplesPerMinute),
	}
}

// Submit processes one sample and returns the label that was recorded.
//
// Field validation happens before any state mutation: a request missing its
// session, student, or emotion input is rejected without touching the rate
// limiter, the registry, or the window. Sessions referenced by a valid
// submission are created implicitly.
func (i *Ingestor) Submit(ctx context.Context, req *SubmitRequest) (types.Emotion, error) {
	if req.SessionID == "" {
		return "", ErrMissingSessionID
	}
	if !types.IsValidID(req.SessionID) {
		return "", types.ErrInvalidSessionID
	}
	if req.StudentID == "" {
		return "", ErrMissingStudentID
	}
	if !types.IsValidID(req.StudentID) {
		return "", types.ErrInvalidStudentID
	}
	if req.EmotionLabel == "" && len(req.ImagePayload) == 0 {
		return "", ErrMissingEmotion
	}

	// A client-provided label is validated up front; it is pure input
	// checking, not state mutation.
	var emotion types.Emotion
	if req.EmotionLabel != "" {
		parsed, err := types.ParseEmotion(req.EmotionLabel)
		if err != nil {
			return "", err
		}
		emotion = parsed
	}

	if !i.rateLimiter.Allow(req.StudentID) {
		return "", ErrRateLimited
	}

	// Image-only submissions delegate to the external classifier. Its
	// output is untrusted: an error or an out-of-set label drops the
	// sample with no retry.
	if emotion == "" {
		classified, err := i.classify(ctx, req.ImagePayload)
		if err != nil {
			return "", err
		}
		emotion = classified
	}

	sample := &types.Sample{
		SessionID:  req.SessionID,
		StudentID:  req.StudentID,
		Emotion:    emotion,
		RecordedAt: time.Now(),
	}

	i.registry.GetOrCreate(req.SessionID)
	i.registry.Touch(req.SessionID)

	if err := i.aggregator.Record(req.SessionID, sample); err != nil {
		return "", fmt.Errorf("failed to record sample: %w", err)
	}

	// Fire-and-forget archival copy. Sink unavailability never affects the
	// in-memory aggregation path.
	if i.sink != nil {
		i.sink.LogSample(sample)
	}

	i.publishSnapshot(req.SessionID)

	return emotion, nil
}

func (i *Ingestor) classify(ctx context.Context, payload []byte) (types.Emotion, error) {
	if i.classifier == nil {
		return "", fmt.Errorf("%w: no classifier configured", ErrClassificationFailed)
	}

	label, err := i.classifier.Classify(ctx, payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrClassificationFailed, err)
	}
	if !types.IsValidEmotion(label) {
		return "", fmt.Errorf("%w: classifier returned unknown label %q", ErrClassificationFailed, label)
	}
	return label, nil
}

func (i *Ingestor) publishSnapshot(sessionID string) {
	if i.publisher == nil {
		return
	}

	snapshot, err := i.aggregator.Snapshot(sessionID)
	if err != nil {
		// Snapshot right after a successful record can only miss if the
		// window was dropped concurrently; nothing to push in that case.
		log.Printf("Snapshot unavailable after record: session=%s err=%v", sessionID, err)
		return
	}
	i.publisher.Publish(sessionID, snapshot)
}

// Snapshot exposes the session's current aggregate for the snapshot
// endpoint. Unknown or empty sessions return aggregator.ErrNoData; they are
// not auto-created by reads.
func (i *Ingestor) Snapshot(sessionID string) (*types.Snapshot, error) {
	return i.aggregator.Snapshot(sessionID)
}

// Start launches periodic rate-limiter cleanup until the context ends.
func (i *Ingestor) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				i.rateLimiter.Cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()
}
