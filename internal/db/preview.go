package db

import (
	"context"
	"time"
)

// PreviewStatus represents where a link preview is in the render pipeline.
type PreviewStatus string

const (
	PreviewPending   PreviewStatus = "pending"
	PreviewRendering PreviewStatus = "rendering"
	PreviewCompleted PreviewStatus = "completed"
	PreviewFailed    PreviewStatus = "failed"
)

// LinkPreview is a headless-browser snapshot of a link's destination.
// It lives in its own table so the Link row is never updated.
type LinkPreview struct {
	ID        uint          `gorm:"primary_key" json:"-"`
	LinkID    uint          `gorm:"not null;unique_index" json:"link_id"`
	Status    PreviewStatus `gorm:"type:varchar(20);not null" json:"status"`
	Title     string        `gorm:"type:varchar(512)" json:"title,omitempty"`
	HTML      string        `gorm:"column:html;type:text" json:"-"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// CreatePreview registers a pending preview for linkID.
func (r *Repo) CreatePreview(ctx context.Context, linkID uint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.conn.Create(&LinkPreview{LinkID: linkID, Status: PreviewPending}).Error
}

// FindPreview returns the preview for linkID.
func (r *Repo) FindPreview(ctx context.Context, linkID uint) (*LinkPreview, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var preview LinkPreview
	if err := r.conn.Where("link_id = ?", linkID).First(&preview).Error; err != nil {
		return nil, notFound(err, "preview for link %d", linkID)
	}
	return &preview, nil
}

// UpdatePreviewStatus sets only the status column.
func (r *Repo) UpdatePreviewStatus(linkID uint, status PreviewStatus) error {
	return r.conn.Model(&LinkPreview{}).
		Where("link_id = ?", linkID).
		Update("status", status).Error
}

// UpdatePreviewContent stores the rendered title and HTML along with the final status.
// A map is used so empty strings are written, not skipped.
func (r *Repo) UpdatePreviewContent(linkID uint, title, html string, status PreviewStatus) error {
	return r.conn.Model(&LinkPreview{}).
		Where("link_id = ?", linkID).
		Updates(map[string]interface{}{
			"status": status,
			"title":  title,
			"html":   html,
		}).Error
}
