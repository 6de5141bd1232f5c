package models

import "time"

// Chat represents either a two-member direct chat or a group chat.
// CreatorID is only meaningful when IsGroup is true.
type Chat struct {
	ID        int       `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	IsGroup   bool      `db:"is_group" json:"is_group"`
	CreatorID int       `db:"creator_id" json:"creator_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`

	// Members holds the member user ids, loaded alongside the chat row.
	Members []int `db:"-" json:"members"`
}

// HasMember reports whether userID belongs to the chat.
func (c Chat) HasMember(userID int) bool {
	for _, id := range c.Members {
		if id == userID {
			return true
		}
	}
	return false
}

// ChatSummary is the per-user projection returned by the chat list:
// direct chats borrow the other member's name and avatar.
type ChatSummary struct {
	ChatID    int      `json:"chat_id"`
	Name      string   `json:"name"`
	IsGroup   bool     `json:"is_group"`
	Avatars   []string `json:"avatars"`
	MemberIDs []int    `json:"members"`
}

// GroupSummary is the projection returned by the created-groups list.
type GroupSummary struct {
	ChatID  int      `json:"chat_id"`
	Name    string   `json:"name"`
	IsGroup bool     `json:"is_group"`
	Avatars []string `json:"avatars"`
}

// ChatDetails is the populated view of a chat, members expanded to
// id/name/avatar tuples.
type ChatDetails struct {
	ID        int          `json:"id"`
	Name      string       `json:"name"`
	IsGroup   bool         `json:"is_group"`
	CreatorID int          `json:"creator_id,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	Members   []MemberInfo `json:"members"`
}

// MemberInfo is the expanded member tuple used by populated chat views.
type MemberInfo struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}
