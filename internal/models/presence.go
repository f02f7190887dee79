package models

import "time"

// UserInfo is the display metadata cached on a connection at handshake time
// and echoed in join/presence events.
type UserInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// CursorPosition is where a user's caret sits in the document.
type CursorPosition struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// SelectionRange is an inclusive start/end pair of cursor positions.
type SelectionRange struct {
	Start CursorPosition `json:"start"`
	End   CursorPosition `json:"end"`
}

// EditorState is the ephemeral per-user entry in a document session: display
// metadata plus the last cursor/selection the user reported. It lives only
// while the user has the document open and is never persisted.
type EditorState struct {
	User      UserInfo        `json:"user"`
	Cursor    *CursorPosition `json:"cursor,omitempty"`
	Selection *SelectionRange `json:"selection,omitempty"`
	JoinedAt  time.Time       `json:"joined_at"`
}
