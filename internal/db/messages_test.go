package db

import (
	"context"
	"errors"
	"testing"

	"github.com/RichardoC/chatpad/internal/models"
)

func TestAppendMessagesOrderAndUpdatedAt(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()
	conv := mustConversation(t, d, "chat")

	const n = 5
	var ids []int64
	for i := 0; i < n; i++ {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		ids = append(ids, mustAppend(t, d, conv.ID, role, "m").ID)
	}

	msgs, err := d.Messages(ctx, conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != n {
		t.Fatalf("expected %d messages, got %d", n, len(msgs))
	}
	for i, msg := range msgs {
		if msg.ID != ids[i] {
			t.Errorf("position %d: expected id %d, got %d", i, ids[i], msg.ID)
		}
		if i > 0 && msg.ID <= msgs[i-1].ID {
			t.Errorf("ids not ascending: %d after %d", msg.ID, msgs[i-1].ID)
		}
		if msg.Model != "test-model" {
			t.Errorf("expected model test-model, got %q", msg.Model)
		}
	}

	got, err := d.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.UpdatedAt.Before(conv.UpdatedAt) {
		t.Errorf("updated_at moved backward: before=%s after=%s", conv.UpdatedAt, got.UpdatedAt)
	}
	if !got.UpdatedAt.Equal(msgs[n-1].Timestamp) {
		t.Errorf("expected updated_at %s to match last message %s", got.UpdatedAt, msgs[n-1].Timestamp)
	}
}

func TestAppendMessageToMissingConversationFails(t *testing.T) {
	d := testDB(t)
	if _, err := d.AppendMessage(context.Background(), 42, models.RoleUser, "x", "m"); err == nil {
		t.Fatal("expected foreign key error")
	}
}

func TestClearContextWindow(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()
	conv := mustConversation(t, d, "ctx")

	mustAppend(t, d, conv.ID, models.RoleUser, "m1")
	mustAppend(t, d, conv.ID, models.RoleAssistant, "m2")
	last := mustAppend(t, d, conv.ID, models.RoleUser, "m3")

	full, err := d.ContextMessages(ctx, conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(full) != 3 {
		t.Fatalf("expected full history without marker, got %d", len(full))
	}

	cleared, err := d.ClearContext(ctx, conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !cleared {
		t.Fatal("expected ClearContext to report success")
	}

	got, err := d.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ContextStartMessageID == nil || *got.ContextStartMessageID != last.ID {
		t.Fatalf("expected marker %d, got %v", last.ID, got.ContextStartMessageID)
	}

	window, err := d.ContextMessages(ctx, conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(window) != 0 {
		t.Fatalf("expected empty window after clear, got %d", len(window))
	}

	next := mustAppend(t, d, conv.ID, models.RoleUser, "m4")
	window, err = d.ContextMessages(ctx, conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(window) != 1 || window[0].ID != next.ID {
		t.Fatalf("expected only message %d in window, got %+v", next.ID, window)
	}

	// Hidden messages are still stored for display.
	all, err := d.Messages(ctx, conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 {
		t.Errorf("expected 4 stored messages, got %d", len(all))
	}
}

func TestClearContextWithoutMessages(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()
	conv := mustConversation(t, d, "empty")

	cleared, err := d.ClearContext(ctx, conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if cleared {
		t.Error("expected ClearContext to report false for an empty conversation")
	}

	got, err := d.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ContextStartMessageID != nil {
		t.Errorf("expected no marker, got %d", *got.ContextStartMessageID)
	}
}

func TestClearContextNeverMovesBackward(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()
	conv := mustConversation(t, d, "monotonic")

	mustAppend(t, d, conv.ID, models.RoleUser, "a")
	last := mustAppend(t, d, conv.ID, models.RoleAssistant, "b")
	if _, err := d.ClearContext(ctx, conv.ID); err != nil {
		t.Fatal(err)
	}

	// Deleting the newest message lowers MAX(id); clearing again must not
	// pull the marker back and re-expose hidden messages.
	if _, err := d.DeleteMessage(ctx, last.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := d.ClearContext(ctx, conv.ID); err != nil {
		t.Fatal(err)
	}

	got, err := d.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ContextStartMessageID == nil || *got.ContextStartMessageID != last.ID {
		t.Errorf("expected marker to stay at %d, got %v", last.ID, got.ContextStartMessageID)
	}
}

func TestMessagesUntilProjection(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()
	conv := mustConversation(t, d, "until")
	other := mustConversation(t, d, "other")

	mustAppend(t, d, conv.ID, models.RoleUser, "q1")
	mustAppend(t, d, other.ID, models.RoleUser, "noise")
	mustAppend(t, d, conv.ID, models.RoleAssistant, "a1")
	u2 := mustAppend(t, d, conv.ID, models.RoleUser, "q2")
	mustAppend(t, d, conv.ID, models.RoleAssistant, "a2")

	history, err := d.MessagesUntil(ctx, conv.ID, u2.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := []models.ChatMessage{
		{Role: models.RoleUser, Content: "q1"},
		{Role: models.RoleAssistant, Content: "a1"},
		{Role: models.RoleUser, Content: "q2"},
	}
	if len(history) != len(want) {
		t.Fatalf("expected %d messages, got %d: %+v", len(want), len(history), history)
	}
	for i := range want {
		if history[i] != want[i] {
			t.Errorf("position %d: expected %+v, got %+v", i, want[i], history[i])
		}
	}
}

func TestLastUserAndNextAssistant(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()
	conv := mustConversation(t, d, "find")

	a0 := mustAppend(t, d, conv.ID, models.RoleAssistant, "greeting")
	u1 := mustAppend(t, d, conv.ID, models.RoleUser, "q1")
	a1 := mustAppend(t, d, conv.ID, models.RoleAssistant, "a1")
	u2 := mustAppend(t, d, conv.ID, models.RoleUser, "q2")

	id, found, err := d.LastUserMessageAtOrBefore(ctx, conv.ID, a1.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !found || id != u1.ID {
		t.Errorf("expected user %d before %d, got %d (found=%v)", u1.ID, a1.ID, id, found)
	}

	id, found, err = d.LastUserMessageAtOrBefore(ctx, conv.ID, u2.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !found || id != u2.ID {
		t.Errorf("expected inclusive match %d, got %d", u2.ID, id)
	}

	if _, found, err = d.LastUserMessageAtOrBefore(ctx, conv.ID, a0.ID); err != nil || found {
		t.Errorf("expected no user message before %d, got found=%v err=%v", a0.ID, found, err)
	}

	id, found, err = d.NextAssistantMessageAfter(ctx, conv.ID, u1.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !found || id != a1.ID {
		t.Errorf("expected assistant %d after %d, got %d", a1.ID, u1.ID, id)
	}

	if _, found, err = d.NextAssistantMessageAfter(ctx, conv.ID, u2.ID); err != nil || found {
		t.Errorf("expected no assistant after %d, got found=%v err=%v", u2.ID, found, err)
	}
}

func TestUpdateMessageContent(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()
	conv := mustConversation(t, d, "edit")
	msg := mustAppend(t, d, conv.ID, models.RoleUser, "old")

	ts, err := d.UpdateMessageContent(ctx, msg.ID, "new")
	if err != nil {
		t.Fatal(err)
	}

	got, err := d.GetMessage(ctx, msg.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Content != "new" {
		t.Errorf("expected content %q, got %q", "new", got.Content)
	}
	if !got.Timestamp.Equal(ts) || !ts.After(msg.Timestamp) {
		t.Errorf("expected refreshed timestamp %s (was %s), got %s", ts, msg.Timestamp, got.Timestamp)
	}
	if got.Role != models.RoleUser || got.ID != msg.ID {
		t.Errorf("id or role changed: %+v", got)
	}

	if _, err := d.UpdateMessageContent(ctx, 9999, "x"); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("expected ErrMessageNotFound, got %v", err)
	}
}

func TestGetMessageNotFound(t *testing.T) {
	d := testDB(t)
	if _, err := d.GetMessage(context.Background(), 1); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("expected ErrMessageNotFound, got %v", err)
	}
}

func TestDeleteMessage(t *testing.T) {
	d := testDB(t)
	ctx := context.Background()
	conv := mustConversation(t, d, "del")

	m1 := mustAppend(t, d, conv.ID, models.RoleUser, "a")
	m2 := mustAppend(t, d, conv.ID, models.RoleAssistant, "b")
	m3 := mustAppend(t, d, conv.ID, models.RoleUser, "c")

	ok, err := d.DeleteMessage(ctx, m2.ID)
	if err != nil || !ok {
		t.Fatalf("expected delete success, got ok=%v err=%v", ok, err)
	}

	msgs, err := d.Messages(ctx, conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[0].ID != m1.ID || msgs[1].ID != m3.ID {
		t.Fatalf("expected ids [%d %d] without renumbering, got %+v", m1.ID, m3.ID, msgs)
	}

	ok, err = d.DeleteMessage(ctx, m2.ID)
	if err != nil || !ok {
		t.Errorf("expected repeat delete to succeed, got ok=%v err=%v", ok, err)
	}
}
