package registrar

import (
	"testing"

	"l2broker/internal/catalog"
	"l2broker/internal/pipeline"
)

type fakeUnit struct {
	inbox *pipeline.Inbox
}

func newFakeUnit() *fakeUnit {
	return &fakeUnit{inbox: pipeline.NewInbox(16)}
}

func (u *fakeUnit) Inbox() *pipeline.Inbox { return u.inbox }

func testKey() catalog.Key {
	return catalog.Key{Exchange: 1, Symbol: 7, Product: catalog.ProductSpot}
}

func TestSubscribeFirstCallPostsSubscribeIntent(t *testing.T) {
	unit := newFakeUnit()
	r := New([]UnitSink{unit}, nil, nil, nil)

	h, err := r.Subscribe(testKey())
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer h.Release()

	select {
	case i := <-unit.Inbox().Chan():
		if i.Kind != pipeline.SubscribeIntent || i.Attachment == nil {
			t.Fatalf("got intent %+v, want SubscribeIntent with attachment", i)
		}
	default:
		t.Fatal("expected a posted intent")
	}
}

func TestSubscribeSecondCallDoesNotRepost(t *testing.T) {
	unit := newFakeUnit()
	r := New([]UnitSink{unit}, nil, nil, nil)

	h1, err := r.Subscribe(testKey())
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer h1.Release()
	<-unit.Inbox().Chan() // drain the first SubscribeIntent

	h2, err := r.Subscribe(testKey())
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer h2.Release()

	select {
	case i := <-unit.Inbox().Chan():
		t.Fatalf("unexpected second intent %+v", i)
	default:
	}

	if h1.Book() != h2.Book() {
		t.Fatal("expected both handles to share the same book")
	}
}

func TestDropLastHandlePostsUnsubscribeIntent(t *testing.T) {
	unit := newFakeUnit()
	r := New([]UnitSink{unit}, nil, nil, nil)

	h1, _ := r.Subscribe(testKey())
	<-unit.Inbox().Chan()
	h2, _ := r.Subscribe(testKey())

	h1.Release()
	select {
	case i := <-unit.Inbox().Chan():
		t.Fatalf("unexpected intent after dropping one of two handles: %+v", i)
	default:
	}

	h2.Release()
	select {
	case i := <-unit.Inbox().Chan():
		if i.Kind != pipeline.UnsubscribeIntent {
			t.Fatalf("got intent %+v, want UnsubscribeIntent", i)
		}
	default:
		t.Fatal("expected UnsubscribeIntent after last release")
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	unit := newFakeUnit()
	r := New([]UnitSink{unit}, nil, nil, nil)

	h, _ := r.Subscribe(testKey())
	<-unit.Inbox().Chan()

	h.Release()
	<-unit.Inbox().Chan() // the UnsubscribeIntent from the first Release

	h.Release() // must not post a second UnsubscribeIntent
	select {
	case i := <-unit.Inbox().Chan():
		t.Fatalf("unexpected second UnsubscribeIntent: %+v", i)
	default:
	}
}

func TestSubscribeDisambiguatesByProductType(t *testing.T) {
	unit := newFakeUnit()
	r := New([]UnitSink{unit}, nil, nil, nil)

	spotKey := catalog.Key{Exchange: 1, Symbol: 7, Product: catalog.ProductSpot}
	perpKey := catalog.Key{Exchange: 1, Symbol: 7, Product: catalog.ProductPerpetual}

	spot, err := r.Subscribe(spotKey)
	if err != nil {
		t.Fatalf("Subscribe(spot): %v", err)
	}
	<-unit.Inbox().Chan()
	perp, err := r.Subscribe(perpKey)
	if err != nil {
		t.Fatalf("Subscribe(perp): %v", err)
	}
	<-unit.Inbox().Chan()

	if spot.Book() == perp.Book() {
		t.Fatal("expected independent books for spot and perpetual subscriptions on the same symbol")
	}

	spot.Release()
	select {
	case i := <-unit.Inbox().Chan():
		if i.Kind != pipeline.UnsubscribeIntent || i.Key != spotKey {
			t.Fatalf("got intent %+v, want UnsubscribeIntent for spot key", i)
		}
	default:
		t.Fatal("expected UnsubscribeIntent for spot after its only handle released")
	}

	select {
	case i := <-unit.Inbox().Chan():
		t.Fatalf("releasing spot handle must not affect perpetual subscription, got %+v", i)
	default:
	}

	perp.Release()
	select {
	case i := <-unit.Inbox().Chan():
		if i.Kind != pipeline.UnsubscribeIntent || i.Key != perpKey {
			t.Fatalf("got intent %+v, want UnsubscribeIntent for perpetual key", i)
		}
	default:
		t.Fatal("expected UnsubscribeIntent for perpetual after its only handle released")
	}
}

func TestAssignmentIsDeterministic(t *testing.T) {
	key := testKey()
	first := assignmentIndex(key, 8)
	for i := 0; i < 100; i++ {
		if got := assignmentIndex(key, 8); got != first {
			t.Fatalf("assignmentIndex not stable: got %d, want %d", got, first)
		}
	}
}

type recordingAuditor struct {
	subs, unsubs []catalog.Key
}

func (a *recordingAuditor) RecordSubscribe(key catalog.Key)   { a.subs = append(a.subs, key) }
func (a *recordingAuditor) RecordUnsubscribe(key catalog.Key) { a.unsubs = append(a.unsubs, key) }

func TestAuditorSeesSubscribeAndUnsubscribe(t *testing.T) {
	unit := newFakeUnit()
	aud := &recordingAuditor{}
	r := New([]UnitSink{unit}, nil, aud, nil)

	h, _ := r.Subscribe(testKey())
	<-unit.Inbox().Chan()
	h.Release()
	<-unit.Inbox().Chan()

	if len(aud.subs) != 1 || len(aud.unsubs) != 1 {
		t.Fatalf("audit calls = %d subs, %d unsubs; want 1 and 1", len(aud.subs), len(aud.unsubs))
	}
}
