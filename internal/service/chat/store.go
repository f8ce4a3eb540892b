package chat

import (
	"errors"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/zhouzirui/moodmic/backend/internal/model/chat"
)

// ErrChatNotFound is returned by SwitchToChat for an unknown history id.
var ErrChatNotFound = errors.New("chat not found")

const titleRunes = 30

// Store keeps the active conversation and the saved histories in memory.
//
// When currentID is set, active always equals that history's messages. When it is
// empty, active is an unsaved conversation that StartNewChat will historize.
type Store struct {
	mu        sync.RWMutex
	histories []chat.History
	active    []chat.Message
	currentID string

	now   func() time.Time
	newID func() string

	// version counts changes under mu; delivered is the newest version handed to
	// subscribers and is guarded by notifyMu.
	version   uint64
	notifyMu  sync.Mutex
	delivered uint64

	subMu  sync.Mutex
	subs   map[int]func(chat.Snapshot)
	nextID int
}

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the time source used for timestamps and dates.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides the identifier source for messages and histories.
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		now:   time.Now,
		newID: uuid.NewString,
		subs:  make(map[int]func(chat.Snapshot)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartNewChat saves an unsaved non-empty conversation as a new history at the head of
// the list, then clears the active view. It reports the saved history, if any.
func (s *Store) StartNewChat() (chat.History, bool) {
	s.mu.Lock()
	var (
		saved   chat.History
		created bool
	)
	if len(s.active) > 0 && s.currentID == "" {
		saved = s.newHistory(s.active)
		s.histories = append([]chat.History{saved}, s.histories...)
		created = true
	}
	s.currentID = ""
	s.active = nil
	snap, version, ok := s.changedLocked()
	s.mu.Unlock()

	s.notify(snap, version, ok)
	if created {
		return cloneHistory(saved), true
	}
	return chat.History{}, false
}

// SwitchToChat makes the history with the given id the active conversation.
// An unknown id returns ErrChatNotFound and leaves the store untouched.
func (s *Store) SwitchToChat(id string) error {
	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return ErrChatNotFound
	}
	s.currentID = id
	s.active = cloneMessages(s.histories[idx].Messages)
	snap, version, ok := s.changedLocked()
	s.mu.Unlock()

	s.notify(snap, version, ok)
	return nil
}

// AppendMessage records an analysis result in the active conversation.
//
// The first message of an empty conversation creates and selects a new history.
// Later messages keep the selected history in sync; an unsaved conversation only
// grows in memory until StartNewChat.
func (s *Store) AppendMessage(result chat.AnalysisResult) chat.Message {
	s.mu.Lock()
	msg := chat.Message{
		ID:            s.newID(),
		Transcription: result.Transcription,
		Emotion:       result.Emotion,
		Response:      result.GeminiResponse,
		Timestamp:     s.now(),
	}

	wasEmpty := len(s.active) == 0
	s.active = append(s.active, msg)

	switch {
	case wasEmpty:
		history := s.newHistory(s.active)
		s.histories = append([]chat.History{history}, s.histories...)
		s.currentID = history.ID
	case s.currentID != "":
		if idx := s.indexOf(s.currentID); idx >= 0 {
			s.histories[idx].Messages = cloneMessages(s.active)
		}
	}
	snap, version, ok := s.changedLocked()
	s.mu.Unlock()

	s.notify(snap, version, ok)
	return msg
}

// Histories returns the saved conversations, newest first.
func (s *Store) Histories() []chat.History {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneHistories(s.histories)
}

// Active returns the messages of the conversation currently shown.
func (s *Store) Active() []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneMessages(s.active)
}

// CurrentChatID returns the selected history id, or "" for an unsaved conversation.
func (s *Store) CurrentChatID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentID
}

// Snapshot returns a deep copy of the whole store.
func (s *Store) Snapshot() chat.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Subscribe registers fn to receive a snapshot after every change. The returned
// function removes the subscription.
//
// Snapshots arrive in the order the changes were made; a snapshot overtaken by a
// newer one is skipped. fn runs synchronously and must not call the store's
// mutators.
func (s *Store) Subscribe(fn func(chat.Snapshot)) func() {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// changedLocked bumps the version and, when anyone is listening, captures the state
// that version describes. Callers hold mu for writing.
func (s *Store) changedLocked() (chat.Snapshot, uint64, bool) {
	s.version++
	s.subMu.Lock()
	listening := len(s.subs) > 0
	s.subMu.Unlock()
	if !listening {
		return chat.Snapshot{}, s.version, false
	}
	return s.snapshotLocked(), s.version, true
}

func (s *Store) notify(snap chat.Snapshot, version uint64, ok bool) {
	if !ok {
		return
	}

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if version <= s.delivered {
		return
	}
	s.delivered = version

	s.subMu.Lock()
	fns := make([]func(chat.Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

func (s *Store) snapshotLocked() chat.Snapshot {
	return chat.Snapshot{
		CurrentChatID: s.currentID,
		Active:        cloneMessages(s.active),
		Histories:     cloneHistories(s.histories),
	}
}

func (s *Store) newHistory(messages []chat.Message) chat.History {
	now := s.now()
	return chat.History{
		ID:        s.newID(),
		Title:     Title(messages[0].Transcription),
		Date:      now.Format(time.DateOnly),
		CreatedAt: now,
		Messages:  cloneMessages(messages),
	}
}

func (s *Store) indexOf(id string) int {
	for i := range s.histories {
		if s.histories[i].ID == id {
			return i
		}
	}
	return -1
}

// Title derives a history title from the first transcription: its first 30
// characters followed by "...".
func Title(transcription string) string {
	if utf8.RuneCountInString(transcription) <= titleRunes {
		return transcription + "..."
	}
	runes := []rune(transcription)
	return string(runes[:titleRunes]) + "..."
}

func cloneMessages(in []chat.Message) []chat.Message {
	if in == nil {
		return []chat.Message{}
	}
	out := make([]chat.Message, len(in))
	copy(out, in)
	return out
}

func cloneHistory(h chat.History) chat.History {
	h.Messages = cloneMessages(h.Messages)
	return h
}

func cloneHistories(in []chat.History) []chat.History {
	out := make([]chat.History, len(in))
	for i, h := range in {
		out[i] = cloneHistory(h)
	}
	return out
}
