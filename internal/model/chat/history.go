package chat

import "time"

// History is a saved conversation shown in the sidebar.
type History struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Date      string    `json:"date"`
	CreatedAt time.Time `json:"createdAt"`
	Messages  []Message `json:"messages"`
}

// Snapshot is a point-in-time copy of the session store, safe to hand to other goroutines.
type Snapshot struct {
	CurrentChatID string    `json:"currentChatId,omitempty"`
	Active        []Message `json:"active"`
	Histories     []History `json:"histories"`
}
