package payments

import (
	"errors"
	"sync"
	"time"
)

// ErrPageNotFound is returned for unknown or expired pages.
var ErrPageNotFound = errors.New("payments: page not found")

// PageStore keeps mounted pages. Implementations return copies, so callers
// never share a *Page with the store.
type PageStore interface {
	Create(page *Page) error
	Get(id string) (*Page, error)
	// Update applies fn to the stored page. When fn returns an error the
	// page is left unchanged.
	Update(id string, fn func(*Page) error) (*Page, error)
	Delete(id string) error
	Len() int
}

type storedPage struct {
	page       *Page
	lastAccess time.Time
}

// MemoryPageStore holds pages in process memory and evicts those idle longer
// than the TTL. Card details therefore never leave this process.
type MemoryPageStore struct {
	mu    sync.Mutex
	pages map[string]*storedPage
	ttl   time.Duration
	now   func() time.Time
	stop  chan struct{}
	once  sync.Once
}

// NewMemoryPageStore creates a store. A ttl of zero disables eviction.
func NewMemoryPageStore(ttl time.Duration) *MemoryPageStore {
	s := &MemoryPageStore{
		pages: make(map[string]*storedPage),
		ttl:   ttl,
		now:   time.Now,
		stop:  make(chan struct{}),
	}
	if ttl > 0 {
		go s.janitor(evictInterval(ttl))
	}
	return s
}

func evictInterval(ttl time.Duration) time.Duration {
	interval := ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	if interval > 5*time.Minute {
		interval = 5 * time.Minute
	}
	return interval
}

func (s *MemoryPageStore) Create(page *Page) error {
	if page == nil || page.ID == "" {
		return errors.New("payments: page id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.pages[page.ID]; exists {
		return errors.New("payments: page already exists")
	}
	s.pages[page.ID] = &storedPage{page: page.clone(), lastAccess: s.now()}
	return nil
}

func (s *MemoryPageStore) Get(id string) (*Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sp, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return sp.page.clone(), nil
}

func (s *MemoryPageStore) Update(id string, fn func(*Page) error) (*Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sp, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	working := sp.page.clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	sp.page = working
	return working.clone(), nil
}

func (s *MemoryPageStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pages[id]; !ok {
		return ErrPageNotFound
	}
	delete(s.pages, id)
	return nil
}

func (s *MemoryPageStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pages)
}

// Close stops the eviction goroutine.
func (s *MemoryPageStore) Close() {
	s.once.Do(func() { close(s.stop) })
}

// lookup must be called with s.mu held. It refreshes the access time.
func (s *MemoryPageStore) lookup(id string) (*storedPage, error) {
	sp, ok := s.pages[id]
	if !ok {
		return nil, ErrPageNotFound
	}
	now := s.now()
	if s.expired(sp, now) {
		delete(s.pages, id)
		return nil, ErrPageNotFound
	}
	sp.lastAccess = now
	return sp, nil
}

func (s *MemoryPageStore) expired(sp *storedPage, now time.Time) bool {
	return s.ttl > 0 && now.Sub(sp.lastAccess) > s.ttl
}

func (s *MemoryPageStore) evictExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	evicted := 0
	for id, sp := range s.pages {
		if s.expired(sp, now) {
			delete(s.pages, id)
			evicted++
		}
	}
	return evicted
}

func (s *MemoryPageStore) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.evictExpired()
		case <-s.stop:
			return
		}
	}
}
