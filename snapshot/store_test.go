package snapshot

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/guestbox/guestbox/wasienv"
)

func sampleState() wasienv.RewindState {
	return wasienv.RewindState{
		MemoryStack: []byte{1, 2, 3, 4},
		RewindStack: []byte{5, 6, 7},
		StoreData:   []byte("store"),
		Is64Bit:     true,
	}
}

func TestCodecRoundTrip(t *testing.T) {
	rs := sampleState()
	id, data, err := encode(rs)
	if err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Fatal("expected content address")
	}
	got, err := decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(rs, got); diff != "" {
		t.Fatalf("decode mismatch (-want +got):\n%s", diff)
	}
}

func TestCodecDeterministicID(t *testing.T) {
	a, _, err := encode(sampleState())
	if err != nil {
		t.Fatal(err)
	}
	b, _, err := encode(sampleState())
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatalf("same state hashed to %s and %s", a, b)
	}
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore())
}

func TestLocalStore(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	testStore(t, s)
}

func TestTimeoutStore(t *testing.T) {
	testStore(t, NewTimeoutStore(NewMemoryStore(), time.Minute))
}

func testStore(t *testing.T, s Store) {
	rs := sampleState()
	id, err := s.Add(rs)
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(rs, got); diff != "" {
		t.Fatalf("get mismatch (-want +got):\n%s", diff)
	}
	if l := s.List(); len(l) != 1 || l[0] != id {
		t.Fatalf("list = %v, want [%s]", l, id)
	}
	if !s.Remove(id) {
		t.Fatal("remove reported missing")
	}
	if _, err := s.Get(id); err != ErrNotExist {
		t.Fatalf("get after remove = %v, want ErrNotExist", err)
	}
	if s.Remove(id) {
		t.Fatal("second remove succeeded")
	}
}

func TestTimeoutStoreEvicts(t *testing.T) {
	inner := NewMemoryStore()
	s := NewTimeoutStore(inner, time.Nanosecond).(*timeoutStore)
	id, err := s.Add(sampleState())
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(time.Millisecond)
	s.checkTimeoutAndRemove()
	if _, err := inner.Get(id); err != ErrNotExist {
		t.Fatalf("expected eviction, got %v", err)
	}
}
