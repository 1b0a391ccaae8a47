package links

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"shortlinks/internal/apperr"
	"shortlinks/internal/cache"
	"shortlinks/internal/db"
)

// memRepo is an in-memory Repository with the same uniqueness rules as the
// SQL schema. The hook fields let tests force collisions and failures.
type memRepo struct {
	mu     sync.Mutex
	nextID uint
	links  map[uint]*db.Link

	codeExists  func(code string) (bool, bool) // (result, override)
	insertErrs  []error                        // returned in order before real inserts
	inserts     int
	existsCalls int
	listCalls   int
	findByCode  int
	listErr     error
	ownerURLErr error
}

func newMemRepo() *memRepo {
	return &memRepo{links: make(map[uint]*db.Link)}
}

func (m *memRepo) Insert(ctx context.Context, link *db.Link) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserts++
	if len(m.insertErrs) > 0 {
		err := m.insertErrs[0]
		m.insertErrs = m.insertErrs[1:]
		return err
	}
	for _, l := range m.links {
		if l.ShortCode == link.ShortCode {
			return fmt.Errorf("%w: %s", db.ErrShortCodeTaken, link.ShortCode)
		}
		if l.OwnerID == link.OwnerID && l.OriginalURL == link.OriginalURL {
			return db.ErrOwnerURLTaken
		}
	}
	m.nextID++
	link.ID = m.nextID
	cp := *link
	m.links[link.ID] = &cp
	return nil
}

func (m *memRepo) FindByShortCode(_ context.Context, code string) (*db.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findByCode++
	for _, l := range m.links {
		if l.ShortCode == code {
			cp := *l
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: short code %q", apperr.ErrNotFound, code)
}

func (m *memRepo) FindByID(_ context.Context, id uint) (*db.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[id]
	if !ok {
		return nil, fmt.Errorf("%w: link %d", apperr.ErrNotFound, id)
	}
	cp := *l
	return &cp, nil
}

func (m *memRepo) ShortCodeExists(_ context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.existsCalls++
	if m.codeExists != nil {
		if res, ok := m.codeExists(code); ok {
			return res, nil
		}
	}
	for _, l := range m.links {
		if l.ShortCode == code {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) OwnerURLExists(_ context.Context, ownerID, originalURL string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ownerURLErr != nil {
		return false, m.ownerURLErr
	}
	for _, l := range m.links {
		if l.OwnerID == ownerID && l.OriginalURL == originalURL {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) ListByOwner(_ context.Context, ownerID string, offset, limit int) ([]db.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	var owned []db.Link
	for _, l := range m.links {
		if l.OwnerID == ownerID {
			owned = append(owned, *l)
		}
	}
	sort.Slice(owned, func(i, j int) bool {
		if !owned[i].CreatedAt.Equal(owned[j].CreatedAt) {
			return owned[i].CreatedAt.After(owned[j].CreatedAt)
		}
		return owned[i].ID > owned[j].ID
	})
	if offset >= len(owned) {
		return nil, nil
	}
	end := min(offset+limit, len(owned))
	return owned[offset:end], nil
}

func (m *memRepo) Delete(_ context.Context, id uint, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[id]
	if !ok || l.OwnerID != ownerID {
		return fmt.Errorf("%w: link %d", apperr.ErrNotFound, id)
	}
	delete(m.links, id)
	return nil
}

// memCache is a map-backed cache.Cache.
type memCache struct {
	mu      sync.Mutex
	entries map[string]db.Link
	deletes []string
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string]db.Link)}
}

func (c *memCache) Get(_ context.Context, code string) (*db.Link, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.entries[code]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return &l, nil
}

func (c *memCache) Set(_ context.Context, link *db.Link) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[link.ShortCode] = *link
	return nil
}

func (c *memCache) Delete(_ context.Context, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, code)
	c.deletes = append(c.deletes, code)
	return nil
}

type recordingScheduler struct {
	mu    sync.Mutex
	links []*db.Link
}

func (r *recordingScheduler) Schedule(_ context.Context, link *db.Link) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.links = append(r.links, link)
}
