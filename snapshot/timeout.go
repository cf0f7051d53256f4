package snapshot

import (
	"container/heap"
	"sync"
	"time"

	"github.com/guestbox/guestbox/wasienv"
)

const checkInterval = 15 * time.Second

var (
	_ Store          = &timeoutStore{}
	_ heap.Interface = &timeoutStore{}
)

type timeoutSnapshot struct {
	id   string
	time time.Time
}

type timeoutStore struct {
	mu       sync.Mutex
	store    Store
	timeout  time.Duration
	snaps    []timeoutSnapshot
	snapsIdx map[string]int
}

// NewTimeoutStore wraps a snapshot store and evicts entries that have not
// been touched for the timeout. Get refreshes the entry's deadline.
func NewTimeoutStore(store Store, timeout time.Duration) Store {
	s := &timeoutStore{
		store:    store,
		timeout:  timeout,
		snapsIdx: make(map[string]int),
	}
	go s.checkTimeoutLoop()
	return s
}

func (s *timeoutStore) checkTimeoutLoop() {
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()
	for {
		s.checkTimeoutAndRemove()
		<-ticker.C
	}
}

func (s *timeoutStore) checkTimeoutAndRemove() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for len(s.snaps) > 0 && now.Sub(s.snaps[0].time) > s.timeout {
		sn := s.snaps[0]
		s.store.Remove(sn.id)
		heap.Pop(s)
	}
}

func (s *timeoutStore) Add(rs wasienv.RewindState) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.store.Add(rs)
	if err != nil {
		return "", err
	}
	heap.Push(s, timeoutSnapshot{id, time.Now()})
	return id, nil
}

func (s *timeoutStore) Get(id string) (wasienv.RewindState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs, err := s.store.Get(id)
	if err != nil {
		return rs, err
	}
	if idx, ok := s.snapsIdx[id]; ok {
		s.snaps[idx].time = time.Now()
		heap.Fix(s, idx)
	}
	return rs, nil
}

func (s *timeoutStore) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok := s.store.Remove(id)
	if idx, exist := s.snapsIdx[id]; exist {
		heap.Remove(s, idx)
	}
	return ok
}

func (s *timeoutStore) List() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.store.List()
}

func (s *timeoutStore) Len() int {
	return len(s.snaps)
}

func (s *timeoutStore) Less(i, j int) bool {
	return s.snaps[i].time.Before(s.snaps[j].time)
}

func (s *timeoutStore) Swap(i, j int) {
	s.snaps[i], s.snaps[j] = s.snaps[j], s.snaps[i]
	s.snapsIdx[s.snaps[i].id] = i
	s.snapsIdx[s.snaps[j].id] = j
}

func (s *timeoutStore) Push(x interface{}) {
	s.snaps = append(s.snaps, x.(timeoutSnapshot))
	s.snapsIdx[x.(timeoutSnapshot).id] = len(s.snaps) - 1
}

func (s *timeoutStore) Pop() interface{} {
	v := s.snaps[len(s.snaps)-1]
	delete(s.snapsIdx, v.id)
	s.snaps = s.snaps[:len(s.snaps)-1]
	return v
}
