package hub

import (
	"errors"
	"sync"
	"testing"
	"time"

	"engage/internal/registry"
	"engage/pkg/types"
)

type fakeObserver struct {
	id   string
	fail bool

	mu       sync.Mutex
	received []*types.Envelope
}

func newFakeObserver(id string) *fakeObserver {
	return &fakeObserver{id: id}
}

func (f *fakeObserver) ID() string { return f.id }

func (f *fakeObserver) Deliver(v interface{}) error {
	if f.fail {
		return errors.New("queue closed")
	}
	envelope, ok := v.(*types.Envelope)
	if !ok {
		return errors.New("unexpected payload type")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received = append(f.received, envelope)
	return nil
}

func (f *fakeObserver) Close() error { return nil }

func (f *fakeObserver) envelopes() []*types.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*types.Envelope, len(f.received))
	copy(out, f.received)
	return out
}

func newTestHub(t *testing.T) (*Hub, *registry.Registry) {
	t.Helper()
	reg := registry.NewRegistry(5*time.Minute, time.Minute)
	return NewHub(reg), reg
}

func snapshotWithCount(n int) *types.Snapshot {
	return &types.Snapshot{
		SessionID:    "session1",
		Distribution: types.Distribution{Focused: 100},
		SampleCount:  n,
	}
}

func TestPublish_ReachesFacultyOnly(t *testing.T) {
	h, reg := newTestHub(t)

	faculty := newFakeObserver("faculty1")
	student := newFakeObserver("student1")
	if err := reg.AddMember("session1", faculty, types.RoleFaculty); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}
	if err := reg.AddMember("session1", student, types.RoleStudent); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}

	h.Publish("session1", snapshotWithCount(1))

	got := faculty.envelopes()
	if len(got) != 1 {
		t.Fatalf("Faculty received %d envelopes, want 1", len(got))
	}
	if got[0].Type != types.EventLiveAnalyticsUpdate {
		t.Errorf("Envelope type = %q, want %q", got[0].Type, types.EventLiveAnalyticsUpdate)
	}
	if len(student.envelopes()) != 0 {
		t.Error("Student observer must not receive aggregate updates")
	}
}

func TestPublish_SessionScoped(t *testing.T) {
	h, reg := newTestHub(t)

	inRoom := newFakeObserver("faculty1")
	otherRoom := newFakeObserver("faculty2")
	reg.AddMember("session1", inRoom, types.RoleFaculty)
	reg.AddMember("session2", otherRoom, types.RoleFaculty)

	h.Publish("session1", snapshotWithCount(1))

	if len(inRoom.envelopes()) != 1 {
		t.Error("Observer in the session should receive the update")
	}
	if len(otherRoom.envelopes()) != 0 {
		t.Error("Observer in another session must not receive the update")
	}
}

func TestPublish_EmptyRoomIsNoOp(t *testing.T) {
	h, _ := newTestHub(t)

	// No members, no session. Must not panic or block.
	h.Publish("ghost-session", snapshotWithCount(1))
}

func TestPublish_FailedObserverDoesNotBlockOthers(t *testing.T) {
	h, reg := newTestHub(t)

	broken := newFakeObserver("broken")
	broken.fail = true
	healthy := newFakeObserver("healthy")
	reg.AddMember("session1", broken, types.RoleFaculty)
	reg.AddMember("session1", healthy, types.RoleFaculty)

	h.Publish("session1", snapshotWithCount(1))

	if len(healthy.envelopes()) != 1 {
		t.Error("Healthy observer should receive the update despite a failing peer")
	}
}

func TestPublish_PerSessionOrderIsConsistentAcrossObservers(t *testing.T) {
	h, reg := newTestHub(t)

	first := newFakeObserver("faculty1")
	second := newFakeObserver("faculty2")
	reg.AddMember("session1", first, types.RoleFaculty)
	reg.AddMember("session1", second, types.RoleFaculty)

	const publishes = 200
	var wg sync.WaitGroup
	for n := 0; n < publishes; n++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			h.Publish("session1", snapshotWithCount(n))
		}(n)
	}
	wg.Wait()

	a := first.envelopes()
	b := second.envelopes()
	if len(a) != publishes || len(b) != publishes {
		t.Fatalf("Received %d and %d envelopes, want %d each", len(a), len(b), publishes)
	}
	for idx := range a {
		countA := a[idx].Payload.(*types.Snapshot).SampleCount
		countB := b[idx].Payload.(*types.Snapshot).SampleCount
		if countA != countB {
			t.Fatalf("Delivery order diverged at %d: %d vs %d", idx, countA, countB)
		}
	}
}

func TestNotifyMembershipChange_ReachesFaculty(t *testing.T) {
	h, reg := newTestHub(t)

	faculty := newFakeObserver("faculty1")
	reg.AddMember("session1", faculty, types.RoleFaculty)

	h.NotifyMembershipChange("session1", types.MembershipEvent{
		SessionID: "session1",
		StudentID: "student1",
		Event:     types.MembershipJoined,
	})

	got := faculty.envelopes()
	if len(got) != 1 {
		t.Fatalf("Faculty received %d envelopes, want 1", len(got))
	}
	if got[0].Type != types.EventMembershipChanged {
		t.Errorf("Envelope type = %q, want %q", got[0].Type, types.EventMembershipChanged)
	}
	event, ok := got[0].Payload.(types.MembershipEvent)
	if !ok {
		t.Fatalf("Payload type = %T, want MembershipEvent", got[0].Payload)
	}
	if event.StudentID != "student1" || event.Event != types.MembershipJoined {
		t.Errorf("Event = %+v, want student1 joined", event)
	}
}

func TestDrop_ReleasesSessionLock(t *testing.T) {
	h, reg := newTestHub(t)

	faculty := newFakeObserver("faculty1")
	reg.AddMember("session1", faculty, types.RoleFaculty)
	h.Publish("session1", snapshotWithCount(1))

	h.Drop("session1")

	// Publishing after a drop lazily recreates the lock.
	h.Publish("session1", snapshotWithCount(2))
	if len(faculty.envelopes()) != 2 {
		t.Errorf("Received %d envelopes, want 2", len(faculty.envelopes()))
	}
}
