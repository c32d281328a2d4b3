package service

import "sync"

// chatLocks serializes message processing per chat across batches while
// letting different chats proceed concurrently. Entries are reference
// counted and removed when the last holder releases, so the map does not
// accumulate one mutex per chat ever seen.
type chatLocks struct {
	mu    sync.Mutex
	locks map[string]*chatLock
}

type chatLock struct {
	sync.Mutex
	refs int
}

func newChatLocks() *chatLocks {
	return &chatLocks{locks: make(map[string]*chatLock)}
}

// acquire locks the mutex for chatID and returns the release function. The
// release function must be called exactly once.
func (c *chatLocks) acquire(chatID string) func() {
	c.mu.Lock()
	entry, ok := c.locks[chatID]
	if !ok {
		entry = &chatLock{}
		c.locks[chatID] = entry
	}
	entry.refs++
	c.mu.Unlock()

	entry.Lock()
	return func() {
		entry.Unlock()

		c.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(c.locks, chatID)
		}
		c.mu.Unlock()
	}
}
