package session

import (
	"context"
	"sync"

	"github.com/MimeLyc/yaml-translator/internal/cache"
)

// Cache is the persistence surface a session needs.
type Cache interface {
	Save(ctx context.Context, lang string, translations map[string]string, cursor int, keys []string)
	Load(ctx context.Context, lang string, keys []string) (*cache.Session, bool)
	Clear(ctx context.Context, lang string)
	ClearAll(ctx context.Context)
}

type snapshot struct {
	lang         string
	translations map[string]string
	cursor       int
	keys         []string
}

// autosaver writes snapshots on a background goroutine. Only the latest
// pending snapshot is written; older ones are overwritten before they land.
type autosaver struct {
	cache Cache

	mu      sync.Mutex
	idle    *sync.Cond
	pending *snapshot
	busy    bool
	closed  bool

	wake     chan struct{}
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newAutosaver(c Cache) *autosaver {
	a := &autosaver{
		cache: c,
		wake:  make(chan struct{}, 1),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	a.idle = sync.NewCond(&a.mu)
	go a.run()
	return a
}

func (a *autosaver) schedule(snap snapshot) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.pending = &snap
	a.mu.Unlock()

	select {
	case a.wake <- struct{}{}:
	default:
	}
}

func (a *autosaver) run() {
	defer close(a.done)
	for {
		select {
		case <-a.stop:
			a.drain()
			return
		case <-a.wake:
			a.drain()
		}
	}
}

func (a *autosaver) drain() {
	for {
		a.mu.Lock()
		snap := a.pending
		a.pending = nil
		if snap == nil {
			a.busy = false
			a.idle.Broadcast()
			a.mu.Unlock()
			return
		}
		a.busy = true
		a.mu.Unlock()

		a.cache.Save(context.Background(), snap.lang, snap.translations, snap.cursor, snap.keys)
	}
}

// flush blocks until every scheduled snapshot has been written.
func (a *autosaver) flush() {
	a.mu.Lock()
	for a.pending != nil || a.busy {
		a.idle.Wait()
	}
	a.mu.Unlock()
}

// discard drops the pending snapshot and waits for an in-flight write.
func (a *autosaver) discard() {
	a.mu.Lock()
	a.pending = nil
	for a.busy {
		a.idle.Wait()
	}
	a.mu.Unlock()
}

func (a *autosaver) close() {
	a.stopOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		a.mu.Unlock()
		close(a.stop)
		<-a.done
	})
}
