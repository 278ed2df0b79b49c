package services

import (
	"context"
	"time"
)

// FileMeta describes a file an applicant is about to upload. Prefix namespaces
// the generated object key.
type FileMeta struct {
	Prefix      string `json:"-"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

type UploadTarget struct {
	Key       string    `json:"key"`
	UploadURL string    `json:"upload_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ObjectStorage issues pre-signed targets for uploaded files and releases them.
type ObjectStorage interface {
	IssueUploadTarget(ctx context.Context, meta FileMeta) (*UploadTarget, error)
	IssueDownloadURL(ctx context.Context, key string) (string, error)
	ReleaseStoredObject(ctx context.Context, key string) error
}

// SubmissionNotifier tells an applicant their submission was received.
type SubmissionNotifier interface {
	SendSubmissionNotification(ctx context.Context, userEmail, cycleName string) error
}
