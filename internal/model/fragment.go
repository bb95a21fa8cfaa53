// Package model defines the gallery's data structures. The JSON tags are the
// API's wire names.
package model

import "time"

// Fragment is a submitted snippet. PasswordHash guards deletion and is never
// serialized.
type Fragment struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Author         string    `json:"author"`
	Code           string    `json:"code"`
	Technology     string    `json:"technology"`
	PasswordHash   string    `json:"-"`
	ThumbnailURL   string    `json:"thumbnailUrl,omitempty"`
	ResonanceCount int       `json:"resonanceCount"`
	WhisperCount   int       `json:"whisperCount"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Resonance is one visitor's like of a fragment. A visitor resonates with a
// fragment at most once.
type Resonance struct {
	FragmentID string    `json:"fragmentId"`
	VisitorID  string    `json:"visitorId"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Whisper is a comment left on a fragment.
type Whisper struct {
	ID         string    `json:"id"`
	FragmentID string    `json:"fragmentId"`
	Author     string    `json:"author"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
}
