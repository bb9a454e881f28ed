package aggregator

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"engage/pkg/types"
)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func sampleAt(session, student string, emotion types.Emotion, at time.Time) *types.Sample {
	return &types.Sample{
		SessionID:  session,
		StudentID:  student,
		Emotion:    emotion,
		RecordedAt: at,
	}
}

func recordN(t *testing.T, agg *Aggregator, session string, emotion types.Emotion, n int, at time.Time) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := agg.Record(session, sampleAt(session, fmt.Sprintf("student%d", i), emotion, at)); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}
}

func TestSnapshot_UnknownSessionReturnsNoData(t *testing.T) {
	agg := NewAggregator(30 * time.Second)

	_, err := agg.Snapshot("never-seen")
	if err != ErrNoData {
		t.Errorf("Expected ErrNoData for unknown session, got %v", err)
	}
}

func TestSnapshot_EmptyWindowReturnsNoData(t *testing.T) {
	agg := NewAggregator(30 * time.Second)
	now := time.Now()
	agg.now = fixedClock(now)

	recordN(t, agg, "session1", types.EmotionFocused, 3, now)

	// Advance past the window; every sample decays out.
	agg.now = fixedClock(now.Add(31 * time.Second))

	_, err := agg.Snapshot("session1")
	if err != ErrNoData {
		t.Errorf("Expected ErrNoData after window decay, got %v", err)
	}
}

func TestSnapshot_DistributionSumsToExactly100(t *testing.T) {
	cases := []struct {
		name                                 string
		focused, confused, bored, distracted int
	}{
		{"single label", 5, 0, 0, 0},
		{"even three-way", 1, 1, 1, 0},
		{"even four-way", 3, 3, 3, 3},
		{"skewed", 17, 3, 2, 1},
		{"thirds and sevenths", 7, 7, 7, 3},
		{"one each", 1, 1, 1, 1},
		{"large", 997, 151, 83, 42},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			agg := NewAggregator(30 * time.Second)
			now := time.Now()
			agg.now = fixedClock(now)

			session := "session-" + strings.ReplaceAll(tc.name, " ", "-")
			recordN(t, agg, session, types.EmotionFocused, tc.focused, now)
			recordN(t, agg, session, types.EmotionConfused, tc.confused, now)
			recordN(t, agg, session, types.EmotionBored, tc.bored, now)
			recordN(t, agg, session, types.EmotionDistracted, tc.distracted, now)

			snapshot, err := agg.Snapshot(session)
			if err != nil {
				t.Fatalf("Snapshot failed: %v", err)
			}

			d := snapshot.Distribution
			if d.Sum() != 100 {
				t.Errorf("Distribution sums to %d, want exactly 100: %+v", d.Sum(), d)
			}
			for label, pct := range map[string]int{
				"focused": d.Focused, "confused": d.Confused,
				"bored": d.Bored, "distracted": d.Distracted,
			} {
				if pct < 0 {
					t.Errorf("%s percentage is negative: %d", label, pct)
				}
			}

			total := tc.focused + tc.confused + tc.bored + tc.distracted
			if snapshot.SampleCount != total {
				t.Errorf("SampleCount = %d, want %d", snapshot.SampleCount, total)
			}
		})
	}
}

func TestSnapshot_RoundingResidualGoesToFocusedFirst(t *testing.T) {
	agg := NewAggregator(30 * time.Second)
	now := time.Now()
	agg.now = fixedClock(now)

	// One each of Focused, Confused, Bored: each rounds to 33, leaving a
	// residual of +1 that the fixed priority order assigns to Focused.
	recordN(t, agg, "session1", types.EmotionFocused, 1, now)
	recordN(t, agg, "session1", types.EmotionConfused, 1, now)
	recordN(t, agg, "session1", types.EmotionBored, 1, now)

	snapshot, err := agg.Snapshot("session1")
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	want := types.Distribution{Focused: 34, Confused: 33, Bored: 33, Distracted: 0}
	if snapshot.Distribution != want {
		t.Errorf("Distribution = %+v, want %+v", snapshot.Distribution, want)
	}
}

func TestSnapshot_EngagementScore(t *testing.T) {
	agg := NewAggregator(30 * time.Second)
	now := time.Now()
	agg.now = fixedClock(now)

	// Counts 7/1/1/1 give 70/10/10/10; score = 70 + 0.2*10 + 0.1*10 = 73.
	recordN(t, agg, "session1", types.EmotionFocused, 7, now)
	recordN(t, agg, "session1", types.EmotionConfused, 1, now)
	recordN(t, agg, "session1", types.EmotionBored, 1, now)
	recordN(t, agg, "session1", types.EmotionDistracted, 1, now)

	snapshot, err := agg.Snapshot("session1")
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	want := types.Distribution{Focused: 70, Confused: 10, Bored: 10, Distracted: 10}
	if snapshot.Distribution != want {
		t.Fatalf("Distribution = %+v, want %+v", snapshot.Distribution, want)
	}
	if snapshot.EngagementScore != 73 {
		t.Errorf("EngagementScore = %d, want 73", snapshot.EngagementScore)
	}
}

func TestSnapshot_DistractedContributesNothingToScore(t *testing.T) {
	agg := NewAggregator(30 * time.Second)
	now := time.Now()
	agg.now = fixedClock(now)

	recordN(t, agg, "session1", types.EmotionDistracted, 10, now)

	snapshot, err := agg.Snapshot("session1")
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snapshot.Distribution.Distracted != 100 {
		t.Fatalf("Distracted = %d, want 100", snapshot.Distribution.Distracted)
	}
	if snapshot.EngagementScore != 0 {
		t.Errorf("EngagementScore = %d, want 0 for fully distracted room", snapshot.EngagementScore)
	}
}

func TestSnapshot_IdempotentWithoutNewRecords(t *testing.T) {
	agg := NewAggregator(30 * time.Second)
	now := time.Now()
	agg.now = fixedClock(now)

	recordN(t, agg, "session1", types.EmotionFocused, 4, now)
	recordN(t, agg, "session1", types.EmotionBored, 2, now)

	first, err := agg.Snapshot("session1")
	if err != nil {
		t.Fatalf("First snapshot failed: %v", err)
	}
	second, err := agg.Snapshot("session1")
	if err != nil {
		t.Fatalf("Second snapshot failed: %v", err)
	}

	if first.Distribution != second.Distribution {
		t.Errorf("Distributions differ: %+v vs %+v", first.Distribution, second.Distribution)
	}
	if first.EngagementScore != second.EngagementScore {
		t.Errorf("Scores differ: %d vs %d", first.EngagementScore, second.EngagementScore)
	}
	if first.SampleCount != second.SampleCount {
		t.Errorf("SampleCounts differ: %d vs %d", first.SampleCount, second.SampleCount)
	}
}

func TestRecord_WindowDecayDropsOldSamples(t *testing.T) {
	agg := NewAggregator(30 * time.Second)
	start := time.Now()

	// Old samples land 40s before "now"; fresh ones inside the window.
	recordN(t, agg, "session1", types.EmotionBored, 5, start)
	agg.now = fixedClock(start.Add(40 * time.Second))
	recordN(t, agg, "session1", types.EmotionFocused, 2, start.Add(40*time.Second))

	snapshot, err := agg.Snapshot("session1")
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snapshot.SampleCount != 2 {
		t.Errorf("SampleCount = %d, want 2 (old samples decayed)", snapshot.SampleCount)
	}
	if snapshot.Distribution.Focused != 100 {
		t.Errorf("Focused = %d, want 100 after decay", snapshot.Distribution.Focused)
	}
}

func TestRecord_ConcurrentSubmissionsLoseNothing(t *testing.T) {
	agg := NewAggregator(time.Minute)

	const goroutines = 20
	const perGoroutine = 50

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				sample := sampleAt("session1", fmt.Sprintf("student%d", g), types.EmotionFocused, time.Now())
				if err := agg.Record("session1", sample); err != nil {
					t.Errorf("Record failed: %v", err)
				}
			}
		}(g)
	}
	wg.Wait()

	snapshot, err := agg.Snapshot("session1")
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if snapshot.SampleCount != goroutines*perGoroutine {
		t.Errorf("SampleCount = %d, want %d (no lost or double-counted samples)",
			snapshot.SampleCount, goroutines*perGoroutine)
	}
}

func TestRecord_SessionsAreIsolated(t *testing.T) {
	agg := NewAggregator(time.Minute)
	now := time.Now()
	agg.now = fixedClock(now)

	recordN(t, agg, "sessionA", types.EmotionFocused, 3, now)
	recordN(t, agg, "sessionB", types.EmotionBored, 1, now)

	a, err := agg.Snapshot("sessionA")
	if err != nil {
		t.Fatalf("Snapshot A failed: %v", err)
	}
	if a.SampleCount != 3 || a.Distribution.Focused != 100 {
		t.Errorf("Session A polluted: %+v", a)
	}

	b, err := agg.Snapshot("sessionB")
	if err != nil {
		t.Fatalf("Snapshot B failed: %v", err)
	}
	if b.SampleCount != 1 || b.Distribution.Bored != 100 {
		t.Errorf("Session B polluted: %+v", b)
	}
}

func TestDrop_DiscardsWindow(t *testing.T) {
	agg := NewAggregator(time.Minute)
	recordN(t, agg, "session1", types.EmotionFocused, 2, time.Now())

	agg.Drop("session1")

	if _, err := agg.Snapshot("session1"); err != ErrNoData {
		t.Errorf("Expected ErrNoData after Drop, got %v", err)
	}
}

func TestRecord_RejectsInvalidSample(t *testing.T) {
	agg := NewAggregator(time.Minute)

	bad := &types.Sample{SessionID: "session1", StudentID: "student1", Emotion: "Ecstatic", RecordedAt: time.Now()}
	if err := agg.Record("session1", bad); err == nil {
		t.Error("Expected error for out-of-set emotion label")
	}

	if _, err := agg.Snapshot("session1"); err != ErrNoData {
		t.Errorf("Rejected sample must not mutate the window, got %v", err)
	}
}
