package http

import (
	"time"

	"github.com/postcaster/golang_services/internal/content/domain"
)

// --- Request DTOs ---

// PostDTO is one backlog entry in a bulk create request.
type PostDTO struct {
	Post string `json:"post" validate:"required,max=10000"`
}

// CreatePostsRequestDTO adds posts to the immediate backlog.
type CreatePostsRequestDTO struct {
	Posts []PostDTO `json:"posts" validate:"required,min=1,max=1000,dive"`
}

// UpdatePostRequestDTO replaces the body of one backlog post.
type UpdatePostRequestDTO struct {
	Post string `json:"post" validate:"required,max=10000"`
}

// CreateScheduledRequestDTO adds a post to the scheduled backlog. Only the
// hour of Time matters for selection.
type CreateScheduledRequestDTO struct {
	Post      string    `json:"post" validate:"required,max=10000"`
	Time      time.Time `json:"time" validate:"required"`
	Recurring bool      `json:"recurring"`
}

// --- Response DTOs ---

type ContentItemDTO struct {
	Key  string `json:"uuid"`
	Post string `json:"post"`
}

type ScheduledItemDTO struct {
	Key       string    `json:"uuid"`
	Post      string    `json:"post"`
	Time      time.Time `json:"time"`
	Hour      int       `json:"hour"`
	Recurring bool      `json:"recurring"`
}

type ListPostsResponseDTO struct {
	Posts      []ContentItemDTO `json:"posts"`
	TotalCount int              `json:"total_count"`
}

type ListScheduledResponseDTO struct {
	Scheduled  []ScheduledItemDTO `json:"scheduled"`
	TotalCount int                `json:"total_count"`
}

func toContentItemDTO(item domain.ContentItem) ContentItemDTO {
	return ContentItemDTO{Key: item.Key, Post: item.Body}
}

// toScheduledItemDTO reports the firing hour in loc, the zone the dispatcher
// compares hours in.
func toScheduledItemDTO(item domain.ScheduledItem, loc *time.Location) ScheduledItemDTO {
	return ScheduledItemDTO{
		Key:       item.Key,
		Post:      item.Body,
		Time:      item.FireWindow.In(loc),
		Hour:      item.HourIn(loc),
		Recurring: item.Recurring,
	}
}
