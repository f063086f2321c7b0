package chat

import (
	"context"
	"fmt"
	"sync"
)

// lanes serializes work per key. Two operations on the same group run one
// after another; different keys proceed in parallel. Idle lanes are removed
// once the last waiter releases them.
type lanes struct {
	mu    sync.Mutex
	lanes map[string]*lane
}

type lane struct {
	slot chan struct{}
	refs int
}

func newLanes() *lanes {
	return &lanes{lanes: make(map[string]*lane)}
}

// acquire blocks until the lane for key is free or ctx is done. The returned
// release func must be called exactly once.
func (l *lanes) acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	ln, ok := l.lanes[key]
	if !ok {
		ln = &lane{slot: make(chan struct{}, 1)}
		l.lanes[key] = ln
	}
	ln.refs++
	l.mu.Unlock()

	select {
	case ln.slot <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, ln)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-ln.slot
			l.unref(key, ln)
		})
	}, nil
}

func (l *lanes) unref(key string, ln *lane) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ln.refs--
	if ln.refs == 0 {
		delete(l.lanes, key)
	}
}

func (l *lanes) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lanes)
}

func groupLane(groupID string) string {
	return "group:" + groupID
}

// directLane keys a conversation by its unordered participant pair.
func directLane(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("dm:%d:%d", a, b)
}
