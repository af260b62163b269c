package audit

import (
	"time"

	"github.com/google/uuid"
)

// TimelineFilters narrows the audit timeline. Zero values match everything.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	ActorID  uuid.NullUUID
	Entity   string
	EntityID string
	Action   string
	Page     int
	PageSize int
}

// Entry is one recorded write.
type Entry struct {
	ID       int64          `json:"id"`
	At       time.Time      `json:"at"`
	ActorID  uuid.NullUUID  `json:"actor_id"`
	Action   string         `json:"action"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entity_id"`
	Meta     map[string]any `json:"meta,omitempty"`
}

// Query is what the repository executes.
type Query struct {
	From     time.Time
	To       time.Time
	ActorID  uuid.NullUUID
	Entity   string
	EntityID string
	Action   string
	Offset   int
	Limit    int
}

// PagingInfo holds simple next/previous paging metadata.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// Result is one page of the timeline.
type Result struct {
	Entries []Entry    `json:"entries"`
	Paging  PagingInfo `json:"paging"`
}
