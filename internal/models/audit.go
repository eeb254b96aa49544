package models

import (
	"encoding/json"
	"time"
)

// Audited admin actions.
const (
	AuditActionUserDelete       = "USER_DELETE"
	AuditActionCourseCacheFlush = "COURSE_CACHE_FLUSH"
)

// AuditLog is one recorded admin write.
type AuditLog struct {
	ID         string          `db:"id" json:"id"`
	UserID     *string         `db:"user_id" json:"user_id,omitempty"`
	Action     string          `db:"action" json:"action"`
	Resource   string          `db:"resource" json:"resource"`
	ResourceID *string         `db:"resource_id" json:"resource_id,omitempty"`
	Details    json.RawMessage `db:"details" json:"details,omitempty"`
	IPAddress  string          `db:"ip_address" json:"ip_address"`
	UserAgent  string          `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}
