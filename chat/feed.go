package chat

import "sync"

// feed wakes goroutines waiting on a user's log. Each user has one channel
// that is closed and replaced on every notify.
type feed struct {
	mu   sync.Mutex
	subs map[string]chan struct{}
}

func newFeed() *feed {
	return &feed{subs: make(map[string]chan struct{})}
}

// wait returns a channel closed on the next notify for userID.
func (f *feed) wait(userID string) <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.subs[userID]
	if !ok {
		ch = make(chan struct{})
		f.subs[userID] = ch
	}
	return ch
}

func (f *feed) notify(userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.subs[userID]; ok {
		close(ch)
		delete(f.subs, userID)
	}
}

func (f *feed) notifyAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, ch := range f.subs {
		close(ch)
		delete(f.subs, id)
	}
}
