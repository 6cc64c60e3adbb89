package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"connectrpc.com/connect"

	"github.com/voicetyped/dialoguekit/internal/connectutil"
	"github.com/voicetyped/dialoguekit/pkg/dialog"
	"github.com/voicetyped/dialoguekit/pkg/dialogueapi"
	"github.com/voicetyped/dialoguekit/pkg/events"
	"github.com/voicetyped/dialoguekit/pkg/savegame"
)

const testWorldYAML = `
actors:
  - id: barkeep
    kind: npc
    scope: tavern.staff
    position: {x: 1, y: 0, z: 0}
context:
  - tag: Gold
    scope: player
    value: 10
`

func tavern() dialog.Script {
	return &dialog.FuncScript{
		Activate: func(d *dialog.Dialogue) {
			d.ShowText(dialog.Line{Speaker: dialog.SpeakerTarget, Text: "Welcome"}, dialog.Resume("menu", 0))
		},
		Points: map[string]func(*dialog.Dialogue, int){
			"menu": func(d *dialog.Dialogue, _ int) {
				d.ShowText(dialog.Line{Speaker: dialog.SpeakerTarget, Text: "What'll it be?"}, dialog.Continuation{})
				d.AddChoice("Ale", dialog.Resume("ale", 0))
				d.AddChoice("Leave", dialog.Continuation{}, dialog.Repeatable())
			},
			"ale": func(d *dialog.Dialogue, _ int) {
				d.GlobalContext().Increment("Ales", 1, true)
				d.ShowText(dialog.Line{Speaker: dialog.SpeakerTarget, Text: "Cheers"}, dialog.Resume("menu", 0))
			},
		},
	}
}

func testRegistry() *dialog.Registry {
	reg := dialog.NewRegistry()
	reg.Register("tavern", func() (dialog.Script, error) { return tavern(), nil })
	return reg
}

func setupDialogueTestServer(t *testing.T, opts ...Option) (*dialogueapi.Client, *DialogueHandler) {
	t.Helper()

	opts = append([]Option{WithWorldData([]byte(testWorldYAML)), WithTickRate(200)}, opts...)
	h := NewDialogueHandler(testRegistry(), nil, nil, opts...)

	mux := http.NewServeMux()
	path, hdlr := dialogueapi.NewDialogueServiceHandler(h, connectutil.DefaultOptions()...)
	mux.Handle(path, hdlr)

	server := httptest.NewServer(mux)
	t.Cleanup(func() {
		server.Close()
		h.Close()
	})
	return dialogueapi.NewClient(server.Client(), server.URL, connectutil.DefaultClientOptions()...), h
}

func startSession(t *testing.T, client *dialogueapi.Client) string {
	t.Helper()
	resp, err := client.StartSession(t.Context(), connect.NewRequest(&dialogueapi.StartSessionRequest{PlayerID: "player"}))
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if resp.Msg.SessionID == "" {
		t.Fatal("empty session id")
	}
	return resp.Msg.SessionID
}

func ref(id string) dialogueapi.SessionRef { return dialogueapi.SessionRef{SessionID: id} }

func startTavern(t *testing.T, client *dialogueapi.Client, id string) events.DialogueView {
	t.Helper()
	resp, err := client.StartDialogue(t.Context(), connect.NewRequest(&dialogueapi.StartDialogueRequest{
		SessionRef:   ref(id),
		Conversation: "tavern",
		TargetID:     "barkeep",
	}))
	if err != nil {
		t.Fatalf("StartDialogue: %v", err)
	}
	return resp.Msg.View
}

func choiceTitles(v events.DialogueView) []string {
	var out []string
	for _, c := range v.Choices {
		out = append(out, c.Title)
	}
	return out
}

func wantCode(t *testing.T, err error, code connect.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v error, got nil", code)
	}
	if got := connect.CodeOf(err); got != code {
		t.Errorf("code = %v, want %v (%v)", got, code, err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	client, h := setupDialogueTestServer(t)
	id := startSession(t, client)

	resp, err := client.GetState(t.Context(), connect.NewRequest(&dialogueapi.GetStateRequest{SessionRef: ref(id)}))
	if err != nil {
		t.Fatalf("GetState: %v", err)
	}
	if resp.Msg.View.Active || resp.Msg.View.State != "inactive" {
		t.Errorf("fresh session view = %+v", resp.Msg.View)
	}
	if h.Sessions().Len() != 1 {
		t.Errorf("sessions = %d, want 1", h.Sessions().Len())
	}

	_, err = client.StartSession(t.Context(), connect.NewRequest(&dialogueapi.StartSessionRequest{SessionID: id}))
	wantCode(t, err, connect.CodeAlreadyExists)

	if _, err := client.EndSession(t.Context(), connect.NewRequest(&dialogueapi.EndSessionRequest{SessionRef: ref(id)})); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	_, err = client.GetState(t.Context(), connect.NewRequest(&dialogueapi.GetStateRequest{SessionRef: ref(id)}))
	wantCode(t, err, connect.CodeNotFound)
	_, err = client.EndSession(t.Context(), connect.NewRequest(&dialogueapi.EndSessionRequest{SessionRef: ref(id)}))
	wantCode(t, err, connect.CodeNotFound)
}

func TestDialogueFlow(t *testing.T) {
	client, _ := setupDialogueTestServer(t)
	id := startSession(t, client)
	ctx := t.Context()

	v := startTavern(t, client, id)
	if !v.Active || v.Text != "Welcome" || v.SpeakerID != "barkeep" || v.Conversation != "tavern" {
		t.Fatalf("first view = %+v", v)
	}

	skip, err := client.Skip(ctx, connect.NewRequest(&dialogueapi.SkipRequest{SessionRef: ref(id)}))
	if err != nil {
		t.Fatalf("Skip: %v", err)
	}
	if got := choiceTitles(skip.Msg.View); len(got) != 2 || got[0] != "Ale" {
		t.Fatalf("choices = %v", got)
	}

	sel, err := client.Select(ctx, connect.NewRequest(&dialogueapi.SelectRequest{SessionRef: ref(id), Index: 0}))
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if !sel.Msg.Accepted || sel.Msg.View.Text != "Cheers" {
		t.Fatalf("after Ale = %+v", sel.Msg)
	}

	got, err := client.GetContext(ctx, connect.NewRequest(&dialogueapi.GetContextRequest{SessionRef: ref(id), Tag: "Ales", Scope: "global"}))
	if err != nil {
		t.Fatalf("GetContext: %v", err)
	}
	if !got.Msg.Present || got.Msg.Value != 1 {
		t.Errorf("Ales = %+v", got.Msg)
	}

	skip, err = client.Skip(ctx, connect.NewRequest(&dialogueapi.SkipRequest{SessionRef: ref(id)}))
	if err != nil {
		t.Fatalf("Skip: %v", err)
	}
	titles := choiceTitles(skip.Msg.View)
	if len(titles) != 2 || titles[0] != "Leave" || titles[1] != "Ale" {
		t.Fatalf("visited choice not moved last: %v", titles)
	}
	if !skip.Msg.View.Choices[1].Visited {
		t.Error("Ale not reported as visited")
	}

	nav, err := client.Navigate(ctx, connect.NewRequest(&dialogueapi.NavigateRequest{SessionRef: ref(id), Direction: 1}))
	if err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	if nav.Msg.View.Hovered != 1 {
		t.Errorf("hovered = %d, want 1", nav.Msg.View.Hovered)
	}

	sel, err = client.Select(ctx, connect.NewRequest(&dialogueapi.SelectRequest{SessionRef: ref(id), Index: 0}))
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if !sel.Msg.Accepted || sel.Msg.View.Active {
		t.Errorf("Leave did not end the conversation: %+v", sel.Msg.View)
	}

	skip, err = client.Skip(ctx, connect.NewRequest(&dialogueapi.SkipRequest{SessionRef: ref(id)}))
	if err != nil {
		t.Fatalf("Skip: %v", err)
	}
	if skip.Msg.Accepted {
		t.Error("skip accepted without a dialogue")
	}
}

func TestStartDialogueErrors(t *testing.T) {
	client, _ := setupDialogueTestServer(t)
	id := startSession(t, client)

	tests := []struct {
		name string
		req  dialogueapi.StartDialogueRequest
		code connect.Code
	}{
		{"unknown conversation", dialogueapi.StartDialogueRequest{SessionRef: ref(id), Conversation: "nowhere"}, connect.CodeNotFound},
		{"unknown target", dialogueapi.StartDialogueRequest{SessionRef: ref(id), Conversation: "tavern", TargetID: "ghost"}, connect.CodeNotFound},
		{"missing conversation", dialogueapi.StartDialogueRequest{SessionRef: ref(id)}, connect.CodeInvalidArgument},
		{"unknown session", dialogueapi.StartDialogueRequest{SessionRef: ref("nope"), Conversation: "tavern"}, connect.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.StartDialogue(t.Context(), connect.NewRequest(&tt.req))
			wantCode(t, err, tt.code)
		})
	}
}

func TestContextScopes(t *testing.T) {
	client, _ := setupDialogueTestServer(t)
	id := startSession(t, client)
	ctx := t.Context()

	gold, err := client.GetContext(ctx, connect.NewRequest(&dialogueapi.GetContextRequest{SessionRef: ref(id), Tag: "Gold", Scope: "player"}))
	if err != nil {
		t.Fatalf("GetContext: %v", err)
	}
	if gold.Msg.Value != 10 || gold.Msg.Scope != "player" {
		t.Errorf("seeded Gold = %+v", gold.Msg)
	}

	_, err = client.GetContext(ctx, connect.NewRequest(&dialogueapi.GetContextRequest{SessionRef: ref(id), Tag: "Mood", Scope: "target"}))
	wantCode(t, err, connect.CodeFailedPrecondition)

	startTavern(t, client, id)
	set, err := client.SetContext(ctx, connect.NewRequest(&dialogueapi.SetContextRequest{SessionRef: ref(id), Tag: "Mood", Scope: "target", Value: 3}))
	if err != nil {
		t.Fatalf("SetContext: %v", err)
	}
	if set.Msg.Scope != "tavern.staff" || set.Msg.Value != 3 || !set.Msg.Present {
		t.Errorf("target Mood = %+v", set.Msg)
	}

	rm, err := client.SetContext(ctx, connect.NewRequest(&dialogueapi.SetContextRequest{SessionRef: ref(id), Tag: "Mood", Scope: "tavern.staff", Remove: true}))
	if err != nil {
		t.Fatalf("SetContext remove: %v", err)
	}
	if rm.Msg.Present {
		t.Error("Mood still present after remove")
	}

	_, err = client.SetContext(ctx, connect.NewRequest(&dialogueapi.SetContextRequest{SessionRef: ref(id), Value: 1}))
	wantCode(t, err, connect.CodeInvalidArgument)
}

func TestStartOneLine(t *testing.T) {
	client, _ := setupDialogueTestServer(t)
	id := startSession(t, client)

	resp, err := client.StartOneLine(t.Context(), connect.NewRequest(&dialogueapi.StartOneLineRequest{
		SessionRef: ref(id), TargetID: "barkeep", Text: "Evening.", Expression: "happy",
	}))
	if err != nil {
		t.Fatalf("StartOneLine: %v", err)
	}
	v := resp.Msg.View
	if !resp.Msg.Accepted || v.Text != "Evening." || v.SpeakerID != "barkeep" || v.Expression != "happy" || v.TimeFraction <= 0 {
		t.Errorf("one-line view = %+v", resp.Msg)
	}

	resp, err = client.StartOneLine(t.Context(), connect.NewRequest(&dialogueapi.StartOneLineRequest{SessionRef: ref(id), Text: ""}))
	if err != nil {
		t.Fatalf("StartOneLine: %v", err)
	}
	if resp.Msg.Accepted {
		t.Error("empty line accepted")
	}

	_, err = client.StartOneLine(t.Context(), connect.NewRequest(&dialogueapi.StartOneLineRequest{SessionRef: ref(id), Text: "x", Speaker: "ghost"}))
	wantCode(t, err, connect.CodeInvalidArgument)
}

func TestSaveAndLoad(t *testing.T) {
	saves, err := savegame.OpenSQLite(t.Context(), filepath.Join(t.TempDir(), "saves.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = saves.Close() })

	client, _ := setupDialogueTestServer(t, WithSaveStore(saves))
	id := startSession(t, client)
	ctx := t.Context()

	startTavern(t, client, id)
	if _, err := client.Skip(ctx, connect.NewRequest(&dialogueapi.SkipRequest{SessionRef: ref(id)})); err != nil {
		t.Fatalf("Skip: %v", err)
	}

	saved, err := client.Save(ctx, connect.NewRequest(&dialogueapi.SaveRequest{SessionRef: ref(id), Slot: "quick"}))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved.Msg.Conversation != "tavern" {
		t.Errorf("saved conversation = %q", saved.Msg.Conversation)
	}

	if _, err := client.Select(ctx, connect.NewRequest(&dialogueapi.SelectRequest{SessionRef: ref(id), Index: 1})); err != nil {
		t.Fatalf("Select: %v", err)
	}

	loaded, err := client.Load(ctx, connect.NewRequest(&dialogueapi.LoadRequest{SessionRef: ref(id), Slot: "quick"}))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	v := loaded.Msg.View
	if !v.Active || v.Text != "What'll it be?" || len(v.Choices) != 2 || v.SpeakerID != "barkeep" {
		t.Errorf("restored view = %+v", v)
	}

	slots, err := client.ListSlots(ctx, connect.NewRequest(&dialogueapi.ListSlotsRequest{SessionRef: ref(id)}))
	if err != nil {
		t.Fatalf("ListSlots: %v", err)
	}
	if len(slots.Msg.Slots) != 1 || slots.Msg.Slots[0].Slot != "quick" {
		t.Errorf("slots = %+v", slots.Msg.Slots)
	}

	_, err = client.Load(ctx, connect.NewRequest(&dialogueapi.LoadRequest{SessionRef: ref(id), Slot: "missing"}))
	wantCode(t, err, connect.CodeNotFound)
	_, err = client.Save(ctx, connect.NewRequest(&dialogueapi.SaveRequest{SessionRef: ref(id)}))
	wantCode(t, err, connect.CodeInvalidArgument)
}

func TestSaveWithoutStore(t *testing.T) {
	client, _ := setupDialogueTestServer(t)
	id := startSession(t, client)

	_, err := client.Save(t.Context(), connect.NewRequest(&dialogueapi.SaveRequest{SessionRef: ref(id), Slot: "quick"}))
	wantCode(t, err, connect.CodeFailedPrecondition)
}

func TestListConversations(t *testing.T) {
	client, _ := setupDialogueTestServer(t)

	resp, err := client.ListConversations(t.Context(), connect.NewRequest(&dialogueapi.ListConversationsRequest{}))
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(resp.Msg.Conversations) != 1 || resp.Msg.Conversations[0] != "tavern" {
		t.Errorf("conversations = %v", resp.Msg.Conversations)
	}
}

func TestWatchEvents(t *testing.T) {
	client, _ := setupDialogueTestServer(t)
	id := startSession(t, client)

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	stream, err := client.WatchEvents(ctx, connect.NewRequest(&dialogueapi.WatchEventsRequest{SessionRef: ref(id)}))
	if err != nil {
		t.Fatalf("WatchEvents: %v", err)
	}
	defer stream.Close()

	if !stream.Receive() {
		t.Fatalf("no initial envelope: %v", stream.Err())
	}
	if first := stream.Msg(); first.Type != events.DialogueUpdated || first.SessionID != id {
		t.Fatalf("initial envelope = %+v", first)
	}

	startTavern(t, client, id)

	seen := map[events.EventType]bool{}
	for !seen[events.DialogueStarted] || !seen[events.LineSpoken] {
		if !stream.Receive() {
			t.Fatalf("stream ended before dialogue events: %v (seen %v)", stream.Err(), seen)
		}
		env := stream.Msg()
		if env.SessionID != id {
			t.Errorf("envelope for session %q leaked into %q", env.SessionID, id)
		}
		seen[env.Type] = true
	}
}

func TestReapStaleSessions(t *testing.T) {
	h := NewDialogueHandler(testRegistry(), nil, nil, WithSessionTTL(time.Minute))
	t.Cleanup(h.Close)

	ended := h.Publisher().Subscribe("test", 16)
	id, err := h.OpenSession(t.Context(), "", "")
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}

	if n := h.reapStaleSessions(t.Context(), time.Now()); n != 0 {
		t.Fatalf("reaped %d fresh sessions", n)
	}
	if n := h.reapStaleSessions(t.Context(), time.Now().Add(2*time.Minute)); n != 1 {
		t.Fatalf("reaped %d, want 1", n)
	}
	if h.Sessions().Len() != 0 {
		t.Errorf("sessions = %d, want 0", h.Sessions().Len())
	}

	for {
		select {
		case env := <-ended:
			if env.Type == events.SessionEnded && env.SessionID == id {
				return
			}
		case <-time.After(time.Second):
			t.Fatal("no session.ended envelope")
		}
	}
}

func TestDeferredActivation(t *testing.T) {
	client, _ := setupDialogueTestServer(t)
	id := startSession(t, client)

	resp, err := client.StartDialogue(t.Context(), connect.NewRequest(&dialogueapi.StartDialogueRequest{
		SessionRef:        ref(id),
		Conversation:      "tavern",
		TargetID:          "barkeep",
		WaitForActivation: true,
	}))
	if err != nil {
		t.Fatalf("StartDialogue: %v", err)
	}
	if !resp.Msg.View.Active || resp.Msg.View.Text != "" {
		t.Fatalf("waiting view = %+v", resp.Msg.View)
	}

	act, err := client.Activate(t.Context(), connect.NewRequest(&dialogueapi.ActivateRequest{SessionRef: ref(id)}))
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if !act.Msg.Accepted || act.Msg.View.Text != "Welcome" {
		t.Errorf("Activate = %v, %+v", act.Msg.Accepted, act.Msg.View)
	}

	again, err := client.Activate(t.Context(), connect.NewRequest(&dialogueapi.ActivateRequest{SessionRef: ref(id)}))
	if err != nil {
		t.Fatalf("second Activate: %v", err)
	}
	if again.Msg.Accepted {
		t.Error("second Activate accepted")
	}
}
