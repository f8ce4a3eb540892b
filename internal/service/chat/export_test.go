package chat

import "github.com/zhouzirui/moodmic/backend/internal/model/chat"

// SetUnsaved puts the store in the detached state: messages shown with no history
// selected.
func (s *Store) SetUnsaved(messages []chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentID = ""
	s.active = cloneMessages(messages)
}
