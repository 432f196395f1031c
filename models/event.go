package models

import (
	"time"
)

type Event struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	StartAt     time.Time `json:"start_at"`
	EndAt       time.Time `json:"end_at"`
	Capacity    int       `json:"capacity"`
	CreatorID   string    `json:"creator_id"`
	Status      string    `json:"status"` // draft, published, cancelled, completed
	ImageURL    string    `json:"image_url,omitempty"`
}
