// Package domain defines the core persistence models and validated value
// objects for the application. This file covers published newsletter issues
// and the durable delivery queue that fans them out to subscribers.
package domain

import "time"

// NewsletterIssue is one published issue. Rows are immutable once created:
// the publish transaction inserts them and the delivery worker only reads
// them back by id.
//
// Fields:
//   - ID: stable UUID primary key (char(36)), generated at publish time.
//   - Subject: email subject line.
//   - TextBody / HTMLBody: the two renderings handed to the email sender.
//   - PublishedAt: UTC timestamp of the publish transaction.
type NewsletterIssue struct {
	ID          string    `json:"id"           gorm:"type:char(36);primaryKey"`
	Subject     string    `json:"subject"      gorm:"type:text;not null"`
	TextBody    string    `json:"text_body"    gorm:"type:text;not null"`
	HTMLBody    string    `json:"html_body"    gorm:"type:text;not null"`
	PublishedAt time.Time `json:"published_at" gorm:"not null"`
}

// TableName returns the database table name for NewsletterIssue.
func (NewsletterIssue) TableName() string { return "newsletter_issues" }

// DeliveryTask is one unit of delivery work: "send issue X to address Y".
// The composite primary key (issue id, subscriber email) is the task's whole
// identity; duplicates of the same pair are never created because the fan-out
// happens exactly once inside the publish transaction.
//
// LeasedBy/LeasedUntil implement crash-safe mutual exclusion between worker
// instances: a worker claims a task by writing its owner id and a lease
// deadline, and a task is claimable only while its lease is absent or
// expired. A worker that dies mid-task leaves nothing to clean up; the lease
// lapses and the task becomes claimable again.
//
// Tasks are deleted on terminal outcomes only: successful send, permanently
// invalid address, or orphaned issue.
type DeliveryTask struct {
	NewsletterIssueID string     `gorm:"type:char(36);primaryKey"`
	SubscriberEmail   string     `gorm:"type:varchar(254);primaryKey"`
	LeasedBy          *string    `gorm:"type:varchar(64)"`
	LeasedUntil       *time.Time `gorm:"index"`
}

// TableName returns the database table name for DeliveryTask.
func (DeliveryTask) TableName() string { return "issue_delivery_queue" }
