package model

import "time"

// SessionInfo is the public view of an answer session.
type SessionInfo struct {
	ID        string    `json:"id"`
	State     string    `json:"state"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
