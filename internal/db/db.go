package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"shortlinks/internal/apperr"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/postgres" // PostgreSQL driver
	_ "github.com/jinzhu/gorm/dialects/sqlite"   // SQLite driver
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// Link is a persisted short link. Every column is immutable after insert.
// Both uniqueness rules live in the schema so that concurrent writers
// cannot slip past an application-level check.
type Link struct {
	ID          uint      `gorm:"primary_key" json:"id"`
	OwnerID     string    `gorm:"type:varchar(255);not null;unique_index:uix_links_owner_url" json:"owner_id"`
	OriginalURL string    `gorm:"type:varchar(2048);not null;unique_index:uix_links_owner_url" json:"original_url"`
	ShortCode   string    `gorm:"type:varchar(64);not null;unique_index:uix_links_short_code" json:"short_code"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
}

// MaxShortCodeLength is the width of the short_code column.
const MaxShortCodeLength = 64

var (
	// ErrShortCodeTaken is returned by Insert when the short_code index rejects the row.
	ErrShortCodeTaken = errors.New("short code already taken")
	// ErrOwnerURLTaken is returned by Insert when the (owner_id, original_url) index rejects the row.
	ErrOwnerURLTaken = errors.New("original url already shortened by owner")
)

// Open connects to the database and migrates the schema.
// driver is a gorm dialect name: "postgres" or "sqlite3".
func Open(driver, dataSourceName string) (*gorm.DB, error) {
	conn, err := gorm.Open(driver, dataSourceName)
	if err != nil {
		return nil, err
	}
	if driver == "sqlite3" {
		// SQLite serializes writers anyway, and ":memory:" databases are per connection.
		conn.DB().SetMaxOpenConns(1)
	}
	if err := Migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// Migrate creates or updates the tables and their indexes.
func Migrate(conn *gorm.DB) error {
	return conn.AutoMigrate(&Link{}, &LinkPreview{}).Error
}

// Repo runs link queries against a gorm connection.
// jinzhu/gorm has no context plumbing, so each call checks ctx before touching the database.
type Repo struct {
	conn *gorm.DB
}

// NewRepo returns a Repo using conn.
func NewRepo(conn *gorm.DB) *Repo {
	return &Repo{conn: conn}
}

// Insert writes a new link. Unique index violations come back as
// ErrShortCodeTaken or ErrOwnerURLTaken; anything else is returned as is.
func (r *Repo) Insert(ctx context.Context, link *Link) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.conn.Create(link).Error; err != nil {
		return classifyInsertErr(err)
	}
	return nil
}

// FindByShortCode retrieves a link by exact, case-sensitive short code.
func (r *Repo) FindByShortCode(ctx context.Context, shortCode string) (*Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var link Link
	if err := r.conn.Where("short_code = ?", shortCode).First(&link).Error; err != nil {
		return nil, notFound(err, "short code %q", shortCode)
	}
	return &link, nil
}

// FindByID retrieves a link by primary key.
func (r *Repo) FindByID(ctx context.Context, id uint) (*Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var link Link
	if err := r.conn.Where("id = ?", id).First(&link).Error; err != nil {
		return nil, notFound(err, "link %d", id)
	}
	return &link, nil
}

// ShortCodeExists reports whether any link already uses shortCode.
func (r *Repo) ShortCodeExists(ctx context.Context, shortCode string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var n int
	if err := r.conn.Model(&Link{}).Where("short_code = ?", shortCode).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// OwnerURLExists reports whether ownerID already shortened originalURL.
func (r *Repo) OwnerURLExists(ctx context.Context, ownerID, originalURL string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var n int
	err := r.conn.Model(&Link{}).
		Where("owner_id = ? AND original_url = ?", ownerID, originalURL).
		Count(&n).Error
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListByOwner returns one window of an owner's links, newest first.
func (r *Repo) ListByOwner(ctx context.Context, ownerID string, offset, limit int) ([]Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var links []Link
	err := r.conn.Where("owner_id = ?", ownerID).
		Order("created_at desc").
		Order("id desc").
		Offset(offset).
		Limit(limit).
		Find(&links).Error
	if err != nil {
		return nil, err
	}
	return links, nil
}

// Delete removes the link with id owned by ownerID, together with its preview.
// It returns apperr.ErrNotFound when no such row exists.
func (r *Repo) Delete(ctx context.Context, id uint, ownerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := r.conn.Begin()
	if tx.Error != nil {
		return tx.Error
	}
	res := tx.Where("id = ? AND owner_id = ?", id, ownerID).Delete(&Link{})
	if res.Error != nil {
		tx.Rollback()
		return res.Error
	}
	if res.RowsAffected == 0 {
		tx.Rollback()
		return fmt.Errorf("%w: link %d", apperr.ErrNotFound, id)
	}
	if err := tx.Where("link_id = ?", id).Delete(&LinkPreview{}).Error; err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit().Error
}

func notFound(err error, format string, args ...interface{}) error {
	if gorm.IsRecordNotFoundError(err) {
		return fmt.Errorf("%w: "+format, append([]interface{}{apperr.ErrNotFound}, args...)...)
	}
	return err
}

// classifyInsertErr maps driver-level unique violations onto the two index errors.
func classifyInsertErr(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code == "23505" {
			return byConstraint(pqErr.Constraint+" "+pqErr.Message, err)
		}
		return err
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		if liteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return byConstraint(liteErr.Error(), err)
		}
		return err
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate key") {
		return byConstraint(msg, err)
	}
	return err
}

func byConstraint(detail string, err error) error {
	if strings.Contains(detail, "short_code") {
		return fmt.Errorf("%w: %v", ErrShortCodeTaken, err)
	}
	return fmt.Errorf("%w: %v", ErrOwnerURLTaken, err)
}
