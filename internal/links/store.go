// Package links owns the business rules for short links: code assignment
// under collision risk, per-owner uniqueness of the original URL, ownership
// checks, and redirect resolution.
package links

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log"
	"net/url"
	"slices"
	"strings"
	"time"

	"shortlinks/internal/apperr"
	"shortlinks/internal/cache"
	"shortlinks/internal/db"
	"shortlinks/internal/metrics"
	"shortlinks/internal/shortener"
)

const (
	// DefaultMaxAttempts bounds how many candidate codes Create tries.
	DefaultMaxAttempts = 10
	maxURLLength       = 2048
	listBatchSize      = 100
)

// ErrDuplicateURL is returned by Create when the owner already shortened the URL.
var ErrDuplicateURL = fmt.Errorf("%w: this URL already exists for this user", apperr.ErrDuplicate)

// Repository is the persistence the Store needs. *db.Repo implements it.
type Repository interface {
	Insert(ctx context.Context, link *db.Link) error
	FindByShortCode(ctx context.Context, shortCode string) (*db.Link, error)
	FindByID(ctx context.Context, id uint) (*db.Link, error)
	ShortCodeExists(ctx context.Context, shortCode string) (bool, error)
	OwnerURLExists(ctx context.Context, ownerID, originalURL string) (bool, error)
	ListByOwner(ctx context.Context, ownerID string, offset, limit int) ([]db.Link, error)
	Delete(ctx context.Context, id uint, ownerID string) error
}

// PreviewScheduler is notified after a link is persisted.
type PreviewScheduler interface {
	Schedule(ctx context.Context, link *db.Link)
}

// Options configures a Store.
type Options struct {
	Alphabet       string
	CodeLength     int
	MaxAttempts    int
	AllowedDomains []string // empty allows every host
	Reserved       []string // codes that would shadow other routes
	Previews       PreviewScheduler
}

// Store is safe for concurrent use; it keeps no mutable state of its own.
type Store struct {
	repo        Repository
	cache       cache.Cache
	gen         *shortener.Generator
	maxAttempts int
	allowed     []string
	reserved    map[string]bool
	previews    PreviewScheduler
	batchSize   int
	now         func() time.Time
}

// NewStore validates opts and builds a Store. A nil cache disables caching.
func NewStore(repo Repository, c cache.Cache, opts Options) (*Store, error) {
	gen, err := shortener.NewGenerator(opts.Alphabet, opts.CodeLength)
	if err != nil {
		return nil, err
	}
	if opts.CodeLength > db.MaxShortCodeLength {
		return nil, fmt.Errorf("%w: code length %d exceeds the %d character column", apperr.ErrConfiguration, opts.CodeLength, db.MaxShortCodeLength)
	}
	if opts.MaxAttempts < 0 {
		return nil, fmt.Errorf("%w: max attempts must not be negative", apperr.ErrConfiguration)
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if c == nil {
		c = cache.Noop{}
	}
	var allowed []string
	for _, d := range opts.AllowedDomains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			allowed = append(allowed, d)
		}
	}
	reserved := make(map[string]bool, len(opts.Reserved))
	for _, code := range opts.Reserved {
		reserved[code] = true
	}
	return &Store{
		repo:        repo,
		cache:       c,
		gen:         gen,
		maxAttempts: opts.MaxAttempts,
		allowed:     allowed,
		reserved:    reserved,
		previews:    opts.Previews,
		batchSize:   listBatchSize,
		now:         time.Now,
	}, nil
}

// Create shortens originalURL for ownerID.
//
// The duplicate pre-check and the code pre-check keep the common path cheap;
// the unique indexes are what actually guarantee both invariants. A
// short_code violation on insert means another writer won the race for that
// candidate, so a new one is drawn. An (owner, url) violation is surfaced as
// ErrDuplicateURL.
func (s *Store) Create(ctx context.Context, ownerID, originalURL string) (*db.Link, error) {
	ownerID = normalizeOwner(ownerID)
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner is required", apperr.ErrValidation)
	}
	target, err := s.validateURL(originalURL)
	if err != nil {
		return nil, err
	}

	exists, err := s.repo.OwnerURLExists(ctx, ownerID, target)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDuplicateURL
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		code := s.gen.Generate()
		if s.reserved[code] {
			continue
		}

		taken, err := s.repo.ShortCodeExists(ctx, code)
		if err != nil {
			return nil, err
		}
		if taken {
			metrics.CodeCollisions.WithLabelValues("precheck").Inc()
			log.Printf("links: short code collision for %s (attempt %d/%d)", code, attempt, s.maxAttempts)
			continue
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		link := &db.Link{
			OwnerID:     ownerID,
			OriginalURL: target,
			ShortCode:   code,
			CreatedAt:   s.now().UTC(),
		}
		err = s.repo.Insert(ctx, link)
		switch {
		case err == nil:
			metrics.LinksCreated.Inc()
			log.Printf("links: created %s for owner %s -> %s", link.ShortCode, ownerID, target)
			if s.previews != nil {
				s.previews.Schedule(ctx, link)
			}
			return link, nil
		case errors.Is(err, db.ErrShortCodeTaken):
			metrics.CodeCollisions.WithLabelValues("constraint").Inc()
			log.Printf("links: insert race on short code %s (attempt %d/%d)", code, attempt, s.maxAttempts)
		case errors.Is(err, db.ErrOwnerURLTaken):
			return nil, ErrDuplicateURL
		default:
			return nil, err
		}
	}

	metrics.CodeSpaceExhausted.Inc()
	log.Printf("CRITICAL links: no free short code after %d attempts (alphabet=%d chars, length=%d, code space=%.0f); configuration is undersized",
		s.maxAttempts, len([]rune(s.gen.Alphabet())), s.gen.Length(), s.gen.CodeSpace())
	return nil, fmt.Errorf("%w: no free short code after %d attempts", apperr.ErrCapacity, s.maxAttempts)
}

// Resolve looks a link up by exact short code. A missing code is terminal.
func (s *Store) Resolve(ctx context.Context, shortCode string) (*db.Link, error) {
	if shortCode == "" {
		metrics.Resolves.WithLabelValues("not_found").Inc()
		return nil, fmt.Errorf("%w: empty short code", apperr.ErrNotFound)
	}

	link, err := s.cache.Get(ctx, shortCode)
	if err == nil {
		metrics.CacheHits.Inc()
		metrics.Resolves.WithLabelValues("found").Inc()
		return link, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		log.Printf("links: cache read for %s failed: %v", shortCode, err)
	}
	metrics.CacheMisses.Inc()

	link, err = s.repo.FindByShortCode(ctx, shortCode)
	if err != nil {
		if apperr.IsNotFound(err) {
			metrics.Resolves.WithLabelValues("not_found").Inc()
		} else {
			metrics.Resolves.WithLabelValues("error").Inc()
		}
		return nil, err
	}
	if err := s.cache.Set(ctx, link); err != nil {
		log.Printf("links: cache write for %s failed: %v", shortCode, err)
	}
	metrics.Resolves.WithLabelValues("found").Inc()
	return link, nil
}

// List yields every link owned by ownerID, newest first. Rows are fetched
// in batches as the caller ranges; each range starts from the top again.
// A storage error is yielded once and ends the sequence.
func (s *Store) List(ctx context.Context, ownerID string) iter.Seq2[*db.Link, error] {
	ownerID = normalizeOwner(ownerID)
	return func(yield func(*db.Link, error) bool) {
		for offset := 0; ; offset += s.batchSize {
			batch, err := s.repo.ListByOwner(ctx, ownerID, offset, s.batchSize)
			if err != nil {
				yield(nil, err)
				return
			}
			for i := range batch {
				if !yield(&batch[i], nil) {
					return
				}
			}
			if len(batch) < s.batchSize {
				return
			}
		}
	}
}

// Detail returns link id if ownerID owns it.
func (s *Store) Detail(ctx context.Context, ownerID string, id uint) (*db.Link, error) {
	ownerID = normalizeOwner(ownerID)
	link, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if link.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: link %d", apperr.ErrAuthorization, id)
	}
	return link, nil
}

// Delete permanently removes link id if ownerID owns it.
func (s *Store) Delete(ctx context.Context, ownerID string, id uint) error {
	ownerID = normalizeOwner(ownerID)
	link, err := s.Detail(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id, ownerID); err != nil {
		return err
	}
	if err := s.cache.Delete(ctx, link.ShortCode); err != nil {
		log.Printf("links: cache evict for %s failed: %v", link.ShortCode, err)
	}
	log.Printf("links: deleted %s (id %d) for owner %s", link.ShortCode, id, ownerID)
	return nil
}

// normalizeOwner is applied by every method that takes an owner id.
func normalizeOwner(ownerID string) string {
	return strings.TrimSpace(ownerID)
}

func (s *Store) validateURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: url is required", apperr.ErrValidation)
	}
	if len(raw) > maxURLLength {
		return "", fmt.Errorf("%w: url is longer than %d characters", apperr.ErrValidation, maxURLLength)
	}
	parsed, err := url.ParseRequestURI(raw)
	if err != nil {
		return "", fmt.Errorf("%w: enter a valid URL", apperr.ErrValidation)
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("%w: unsupported URL scheme %q", apperr.ErrValidation, parsed.Scheme)
	}
	if parsed.Host == "" || parsed.Hostname() == "" {
		return "", fmt.Errorf("%w: url must include a host", apperr.ErrValidation)
	}
	if len(s.allowed) > 0 {
		host := strings.ToLower(parsed.Hostname())
		if !slices.Contains(s.allowed, host) {
			return "", fmt.Errorf("%w: domain '%s' is not allowed for shortening", apperr.ErrValidation, host)
		}
	}
	return raw, nil
}
