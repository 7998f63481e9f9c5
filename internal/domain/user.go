// Package domain contains entity without logic, just meta-data
package domain

// UserID is an opaque identity issued by the external auth collaborator.
type UserID string

type User struct {
	ID       UserID `json:"id"`
	FullName string `json:"full_name,omitempty"`
	Avatar   string `json:"avatar_url,omitempty"`
}
