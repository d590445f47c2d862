package remote

import (
	"context"
	"encoding/json"
)

// ErrorNotFound is the error value of a load for a tenant with no data.
const ErrorNotFound = "not_found"

// Meta is the server-side bookkeeping of a stored body.
type Meta struct {
	Rev       int64  `json:"rev"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// LoadResponse answers a load.
type LoadResponse struct {
	OK      bool            `json:"ok"`
	DB      json.RawMessage `json:"db,omitempty"`
	Meta    *Meta           `json:"meta,omitempty"`
	Error   string          `json:"error,omitempty"`
	Blocked bool            `json:"blocked,omitempty"`
}

// SaveRequest is the body of a save.
type SaveRequest struct {
	Token string          `json:"token,omitempty"`
	DB    json.RawMessage `json:"db"`
	Meta  map[string]any  `json:"meta,omitempty"`
}

// SaveResponse answers a save. Rev is the revision assigned to this save.
type SaveResponse struct {
	OK      bool   `json:"ok"`
	SavedAt string `json:"savedAt,omitempty"`
	Bytes   int    `json:"bytes,omitempty"`
	Rev     int64  `json:"rev,omitempty"`
	Error   string `json:"error,omitempty"`
	Blocked bool   `json:"blocked,omitempty"`
}

// StatusResponse answers a status check without transferring the body.
type StatusResponse struct {
	OK         bool   `json:"ok"`
	Exists     bool   `json:"exists"`
	Rev        int64  `json:"rev,omitempty"`
	UpdatedAt  string `json:"updatedAt,omitempty"`
	ServerTime string `json:"serverTime,omitempty"`
	Error      string `json:"error,omitempty"`
	Blocked    bool   `json:"blocked,omitempty"`
}

// Client reaches the remote service for one tenant.
type Client interface {
	Load(ctx context.Context) (LoadResponse, error)
	Save(ctx context.Context, db json.RawMessage, meta map[string]any) (SaveResponse, error)
	Status(ctx context.Context) (StatusResponse, error)
}

// record is the stored form of a tenant's body.
type record struct {
	Rev       int64           `json:"rev"`
	UpdatedAt string          `json:"updatedAt"`
	Token     string          `json:"token,omitempty"`
	Meta      map[string]any  `json:"meta,omitempty"`
	DB        json.RawMessage `json:"db"`
}
