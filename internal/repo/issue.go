// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for published
// newsletter issues. Pure storage, no business logic: the publish
// transaction writes issues and the delivery worker reads them back.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-newsletter-backend/internal/domain"
)

// InsertNewsletterIssue stores a freshly published issue and returns its
// generated id. Called inside the publish transaction; the issue is not
// observable by the delivery worker until that transaction commits.
func InsertNewsletterIssue(ctx context.Context, tx *gorm.DB, subject, textBody, htmlBody string) (string, error) {
	issue := &domain.NewsletterIssue{
		ID:          uuid.NewString(),
		Subject:     subject,
		TextBody:    textBody,
		HTMLBody:    htmlBody,
		PublishedAt: time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(issue).Error; err != nil {
		return "", err
	}
	return issue.ID, nil
}

// GetNewsletterIssue fetches one issue by id, or ErrNotFound. The delivery
// worker calls this on its critical path: a missing issue means every queue
// entry referencing it is an orphan.
func GetNewsletterIssue(ctx context.Context, db *gorm.DB, id string) (*domain.NewsletterIssue, error) {
	var issue domain.NewsletterIssue
	err := db.WithContext(ctx).Where("id = ?", id).First(&issue).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &issue, nil
}

// CountNewsletterIssues returns the total number of published issues.
func CountNewsletterIssues(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.NewsletterIssue{}).Count(&n).Error
	return n, err
}

// ListNewsletterIssuesPage returns a page of issues ordered by publish time
// descending (most recent first).
func ListNewsletterIssuesPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.NewsletterIssue, error) {
	var out []domain.NewsletterIssue
	err := db.WithContext(ctx).
		Order("published_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
