package chat_test

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	model "github.com/zhouzirui/moodmic/backend/internal/model/chat"
	chat "github.com/zhouzirui/moodmic/backend/internal/service/chat"
)

func newTestStore() *chat.Store {
	var n int
	clock := time.Date(2024, 3, 9, 14, 30, 0, 0, time.Local)
	return chat.NewStore(
		chat.WithClock(func() time.Time { return clock }),
		chat.WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		}),
	)
}

func result(text string) model.AnalysisResult {
	return model.AnalysisResult{Transcription: text, Emotion: "happy", GeminiResponse: "reply to " + text}
}

func TestAppendMessageCreatesHistoryOnce(t *testing.T) {
	store := newTestStore()

	first := store.AppendMessage(result("hello there"))
	histories := store.Histories()
	if len(histories) != 1 {
		t.Fatalf("expected 1 history, got %d", len(histories))
	}
	if store.CurrentChatID() != histories[0].ID {
		t.Fatalf("current chat %q, want %q", store.CurrentChatID(), histories[0].ID)
	}
	if first.Response != "reply to hello there" || first.Emotion != "happy" {
		t.Fatalf("unexpected message: %+v", first)
	}

	store.AppendMessage(result("second"))
	histories = store.Histories()
	if len(histories) != 1 {
		t.Fatalf("expected still 1 history, got %d", len(histories))
	}
	if got := len(histories[0].Messages); got != 2 {
		t.Fatalf("expected 2 messages in history, got %d", got)
	}
	if got := len(store.Active()); got != 2 {
		t.Fatalf("expected 2 active messages, got %d", got)
	}
}

func TestHistoryTitleAndDate(t *testing.T) {
	store := newTestStore()
	store.AppendMessage(result("I have been feeling rather anxious about tomorrow"))

	h := store.Histories()[0]
	if h.Title != "I have been feeling rather anx..." {
		t.Fatalf("unexpected title %q", h.Title)
	}
	if h.Date != "2024-03-09" {
		t.Fatalf("unexpected date %q", h.Date)
	}
}

func TestTitleCountsCharactersNotBytes(t *testing.T) {
	text := strings.Repeat("é", 40)
	want := strings.Repeat("é", 30) + "..."
	if got := chat.Title(text); got != want {
		t.Fatalf("got %q want %q", got, want)
	}
	if got := chat.Title("short"); got != "short..." {
		t.Fatalf("got %q", got)
	}
}

func TestStartNewChatSavesUnsavedConversation(t *testing.T) {
	store := newTestStore()
	store.AppendMessage(result("existing"))
	store.StartNewChat()

	store.SetUnsaved([]model.Message{
		{ID: "m1", Transcription: "alpha"},
		{ID: "m2", Transcription: "beta"},
		{ID: "m3", Transcription: "gamma"},
	})

	saved, ok := store.StartNewChat()
	if !ok {
		t.Fatal("expected the unsaved conversation to be saved")
	}

	histories := store.Histories()
	if len(histories) != 2 {
		t.Fatalf("expected 2 histories, got %d", len(histories))
	}
	if histories[0].ID != saved.ID {
		t.Fatalf("new history must be at the head, got %q", histories[0].ID)
	}
	if histories[0].Title != "alpha..." {
		t.Fatalf("unexpected title %q", histories[0].Title)
	}
	if len(histories[0].Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(histories[0].Messages))
	}
	if len(store.Active()) != 0 || store.CurrentChatID() != "" {
		t.Fatal("active conversation must be empty after StartNewChat")
	}
}

func TestStartNewChatDoesNotResaveSelectedChat(t *testing.T) {
	store := newTestStore()
	store.AppendMessage(result("one"))

	if _, saved := store.StartNewChat(); saved {
		t.Fatal("conversation with a current chat must not be saved again")
	}
	if len(store.Histories()) != 1 {
		t.Fatalf("expected 1 history, got %d", len(store.Histories()))
	}
}

func TestAppendToUnsavedConversationStaysInMemory(t *testing.T) {
	store := newTestStore()
	store.SetUnsaved([]model.Message{{ID: "m1", Transcription: "draft"}})

	store.AppendMessage(result("more"))
	if len(store.Histories()) != 0 {
		t.Fatal("unsaved conversation must not be historized on append")
	}
	if len(store.Active()) != 2 {
		t.Fatalf("expected 2 active messages, got %d", len(store.Active()))
	}
}

func TestStartNewChatOnEmptyConversationCreatesNothing(t *testing.T) {
	store := newTestStore()
	if _, saved := store.StartNewChat(); saved {
		t.Fatal("empty conversation must not be saved")
	}
	if len(store.Histories()) != 0 {
		t.Fatal("expected no histories")
	}
}

func TestSwitchToChatDoesNotMutateHistories(t *testing.T) {
	store := newTestStore()

	store.AppendMessage(result("first chat"))
	store.AppendMessage(result("first chat again"))
	store.StartNewChat()
	store.AppendMessage(result("second chat"))
	store.StartNewChat()

	before := store.Histories()
	if len(before) != 2 {
		t.Fatalf("expected 2 histories, got %d", len(before))
	}

	if err := store.SwitchToChat(before[0].ID); err != nil {
		t.Fatalf("SwitchToChat: %v", err)
	}
	if err := store.SwitchToChat(before[1].ID); err != nil {
		t.Fatalf("SwitchToChat: %v", err)
	}

	after := store.Histories()
	for i := range before {
		if len(before[i].Messages) != len(after[i].Messages) {
			t.Fatalf("history %d changed: %d -> %d messages", i, len(before[i].Messages), len(after[i].Messages))
		}
		for j := range before[i].Messages {
			if before[i].Messages[j] != after[i].Messages[j] {
				t.Fatalf("history %d message %d changed", i, j)
			}
		}
	}

	active := store.Active()
	if store.CurrentChatID() != before[1].ID || len(active) != 2 {
		t.Fatalf("expected the first chat (2 messages) to be active, got %q with %d", store.CurrentChatID(), len(active))
	}
}

func TestSwitchToChatUnknownIDFails(t *testing.T) {
	store := newTestStore()
	store.AppendMessage(result("kept"))
	current := store.CurrentChatID()

	if err := store.SwitchToChat("missing"); !errors.Is(err, chat.ErrChatNotFound) {
		t.Fatalf("expected ErrChatNotFound, got %v", err)
	}
	if store.CurrentChatID() != current || len(store.Active()) != 1 {
		t.Fatal("state must be unchanged after a failed switch")
	}
}

func TestAppendAfterSwitchUpdatesSelectedHistory(t *testing.T) {
	store := newTestStore()
	store.AppendMessage(result("older"))
	olderID := store.CurrentChatID()
	store.StartNewChat()
	store.AppendMessage(result("newer"))

	if err := store.SwitchToChat(olderID); err != nil {
		t.Fatalf("SwitchToChat: %v", err)
	}
	store.AppendMessage(result("older follow-up"))

	for _, h := range store.Histories() {
		switch h.ID {
		case olderID:
			if len(h.Messages) != 2 {
				t.Fatalf("older history should have 2 messages, got %d", len(h.Messages))
			}
		default:
			if len(h.Messages) != 1 {
				t.Fatalf("newer history should be untouched, got %d", len(h.Messages))
			}
		}
	}
}

func TestAccessorsReturnCopies(t *testing.T) {
	store := newTestStore()
	store.AppendMessage(result("original"))

	active := store.Active()
	active[0].Transcription = "mutated"
	histories := store.Histories()
	histories[0].Messages[0].Transcription = "mutated"

	if store.Active()[0].Transcription != "original" {
		t.Fatal("Active leaked internal state")
	}
	if store.Histories()[0].Messages[0].Transcription != "original" {
		t.Fatal("Histories leaked internal state")
	}
}

func TestSubscribeReceivesSnapshots(t *testing.T) {
	store := newTestStore()

	var snaps []model.Snapshot
	cancel := store.Subscribe(func(s model.Snapshot) { snaps = append(snaps, s) })

	store.AppendMessage(result("hi"))
	store.StartNewChat()
	cancel()
	store.AppendMessage(result("ignored"))

	if len(snaps) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snaps))
	}
	if snaps[0].CurrentChatID == "" || len(snaps[0].Active) != 1 {
		t.Fatalf("unexpected first snapshot: %+v", snaps[0])
	}
	if snaps[1].CurrentChatID != "" || len(snaps[1].Active) != 0 || len(snaps[1].Histories) != 1 {
		t.Fatalf("unexpected second snapshot: %+v", snaps[1])
	}
}

func TestSubscribersSeeChangesInOrder(t *testing.T) {
	store := chat.NewStore()

	var (
		mu   sync.Mutex
		seen []int
	)
	store.Subscribe(func(s model.Snapshot) {
		mu.Lock()
		seen = append(seen, len(s.Histories))
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				store.AppendMessage(result(fmt.Sprintf("worker %d message %d", i, j)))
				if j%5 == 4 {
					store.StartNewChat()
				}
			}
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(seen) == 0 {
		t.Fatal("expected snapshots")
	}
	for i := 1; i < len(seen); i++ {
		if seen[i] < seen[i-1] {
			t.Fatalf("snapshot %d went back from %d to %d histories", i, seen[i-1], seen[i])
		}
	}
	if last, want := seen[len(seen)-1], len(store.Histories()); last != want {
		t.Fatalf("last snapshot has %d histories, store has %d", last, want)
	}
}
