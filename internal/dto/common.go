package dto

import (
	"time"

	"github.com/noah-isme/weekend-academy-api/internal/authz"
	"github.com/noah-isme/weekend-academy-api/internal/models"
)

// FailedItem reports one rejected entry of a bulk operation.
type FailedItem struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// UploadResponse returns the public URL of a stored file.
type UploadResponse struct {
	URL string `json:"url"`
}

// MeResponse describes the caller and what the token lets them do.
type MeResponse struct {
	models.UserInfo
	Permissions []authz.Action `json:"permissions"`
	ExpiresAt   *time.Time     `json:"expires_at,omitempty"`
}
