package aggregator

import (
	"math"
	"sync"
	"time"

	"engage/pkg/types"
)

// entry is one sample inside a session window. Only the label and arrival
// time survive ingestion; everything else about the sample is discarded.
type entry struct {
	emotion types.Emotion
	at      time.Time
}

// window is the rolling per-session state. Guarded by its own mutex so
// record and snapshot on one session are mutually atomic while distinct
// sessions proceed fully in parallel.
type window struct {
	mu      sync.Mutex
	entries []entry
	counts  [len(types.Emotions)]int
}

// Aggregator maintains a sliding time window of emotion counts per session.
// Window policy is fixed: samples older than the configured span are decayed
// out on every record and snapshot; there is no sample-count bound.
type Aggregator struct {
	mu      sync.RWMutex
	windows map[string]*window
	span    time.Duration

	now func() time.Time // injectable for deterministic tests
}

// NewAggregator creates an aggregator with the given window span.
func NewAggregator(span time.Duration) *Aggregator {
	return &Aggregator{
		windows: make(map[string]*window),
		span:    span,
		now:     time.Now,
	}
}

// Record consumes a sample into the session's window, creating the window on
// first use.
func (a *Aggregator) Record(sessionID string, sample *types.Sample) error {
	if err := sample.Validate(); err != nil {
		return err
	}

	w := a.getOrCreateWindow(sessionID)

	w.mu.Lock()
	defer w.mu.Unlock()

	w.prune(a.now().Add(-a.span))
	w.entries = append(w.entries, entry{emotion: sample.Emotion, at: sample.RecordedAt})
	w.counts[labelIndex(sample.Emotion)]++
	return nil
}

// Snapshot computes the normalized distribution and engagement score for a
// session. A session with no samples in the window returns ErrNoData: the
// aggregator never fabricates numbers for empty or unknown sessions.
func (a *Aggregator) Snapshot(sessionID string) (*types.Snapshot, error) {
	a.mu.RLock()
	w, exists := a.windows[sessionID]
	a.mu.RUnlock()
	if !exists {
		return nil, ErrNoData
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.prune(a.now().Add(-a.span))

	total := 0
	for _, c := range w.counts {
		total += c
	}
	if total == 0 {
		return nil, ErrNoData
	}

	dist := normalize(w.counts, total)

	return &types.Snapshot{
		SessionID:       sessionID,
		Distribution:    dist,
		EngagementScore: engagementScore(dist),
		SampleCount:     total,
		ComputedAt:      a.now(),
	}, nil
}

// Drop discards a session's window. Called from the registry's expiry hook
// when an idle session is reaped.
func (a *Aggregator) Drop(sessionID string) {
	a.mu.Lock()
	delete(a.windows, sessionID)
	a.mu.Unlock()
}

// GetStats returns aggregator counters for the health endpoint.
func (a *Aggregator) GetStats() map[string]int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return map[string]int{
		"tracked_sessions": len(a.windows),
	}
}

func (a *Aggregator) getOrCreateWindow(sessionID string) *window {
	a.mu.RLock()
	w, exists := a.windows[sessionID]
	a.mu.RUnlock()
	if exists {
		return w
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if w, exists = a.windows[sessionID]; exists {
		return w
	}
	w = &window{}
	a.windows[sessionID] = w
	return w
}

// prune decays entries older than the cutoff. Entries are appended in
// arrival order, so expired samples form a prefix. Caller holds w.mu.
func (w *window) prune(cutoff time.Time) {
	i := 0
	for i < len(w.entries) && w.entries[i].at.Before(cutoff) {
		w.counts[labelIndex(w.entries[i].emotion)]--
		i++
	}
	if i > 0 {
		w.entries = append([]entry(nil), w.entries[i:]...)
	}
}

// normalize converts window counts to integer percentages summing to exactly
// 100. Each share is rounded independently, which can leave a residual of a
// few points; the residual is applied to the first label in the fixed
// priority order (Focused, Confused, Bored, Distracted), carrying to the
// next label if the adjustment would push one below zero.
func normalize(counts [len(types.Emotions)]int, total int) types.Distribution {
	var pcts [len(types.Emotions)]int
	sum := 0
	for i, c := range counts {
		pcts[i] = int(math.Round(float64(c) / float64(total) * 100))
		sum += pcts[i]
	}

	residual := 100 - sum
	for i := 0; residual != 0 && i < len(pcts); i++ {
		adjusted := pcts[i] + residual
		if adjusted < 0 {
			residual = adjusted
			pcts[i] = 0
			continue
		}
		pcts[i] = adjusted
		residual = 0
	}

	return types.Distribution{
		Focused:    pcts[0],
		Confused:   pcts[1],
		Bored:      pcts[2],
		Distracted: pcts[3],
	}
}

// engagementScore is round(focused% + 0.2*confused% + 0.1*bored%).
// Distracted contributes zero by design: distracted students are counted in
// the distribution but add nothing to engagement.
func engagementScore(d types.Distribution) int {
	return int(math.Round(float64(d.Focused) + 0.2*float64(d.Confused) + 0.1*float64(d.Bored)))
}

func labelIndex(e types.Emotion) int {
	for i, label := range types.Emotions {
		if label == e {
			return i
		}
	}
	// Unreachable for validated samples.
	return 0
}
