package dialogueapi

import (
	"context"
	"net/http"

	"connectrpc.com/connect"

	"github.com/voicetyped/dialoguekit/pkg/events"
)

// ServiceName is the fully qualified DialogueService name.
const ServiceName = "dialoguekit.v1.DialogueService"

// Procedure paths, relative to the server root.
const (
	StartSessionProcedure      = "/" + ServiceName + "/StartSession"
	EndSessionProcedure        = "/" + ServiceName + "/EndSession"
	StartDialogueProcedure     = "/" + ServiceName + "/StartDialogue"
	ActivateProcedure          = "/" + ServiceName + "/Activate"
	StartOneLineProcedure      = "/" + ServiceName + "/StartOneLine"
	SkipProcedure              = "/" + ServiceName + "/Skip"
	SelectProcedure            = "/" + ServiceName + "/Select"
	HoverProcedure             = "/" + ServiceName + "/Hover"
	NavigateProcedure          = "/" + ServiceName + "/Navigate"
	TogglePauseProcedure       = "/" + ServiceName + "/TogglePause"
	GetStateProcedure          = "/" + ServiceName + "/GetState"
	SetContextProcedure        = "/" + ServiceName + "/SetContext"
	GetContextProcedure        = "/" + ServiceName + "/GetContext"
	SaveProcedure              = "/" + ServiceName + "/Save"
	LoadProcedure              = "/" + ServiceName + "/Load"
	ListSlotsProcedure         = "/" + ServiceName + "/ListSlots"
	ListConversationsProcedure = "/" + ServiceName + "/ListConversations"
	WatchEventsProcedure       = "/" + ServiceName + "/WatchEvents"
)

// DialogueServiceHandler is implemented by the server.
type DialogueServiceHandler interface {
	StartSession(context.Context, *connect.Request[StartSessionRequest]) (*connect.Response[StartSessionResponse], error)
	EndSession(context.Context, *connect.Request[EndSessionRequest]) (*connect.Response[EndSessionResponse], error)
	StartDialogue(context.Context, *connect.Request[StartDialogueRequest]) (*connect.Response[StateResponse], error)
	Activate(context.Context, *connect.Request[ActivateRequest]) (*connect.Response[StateResponse], error)
	StartOneLine(context.Context, *connect.Request[StartOneLineRequest]) (*connect.Response[StateResponse], error)
	Skip(context.Context, *connect.Request[SkipRequest]) (*connect.Response[StateResponse], error)
	Select(context.Context, *connect.Request[SelectRequest]) (*connect.Response[StateResponse], error)
	Hover(context.Context, *connect.Request[HoverRequest]) (*connect.Response[StateResponse], error)
	Navigate(context.Context, *connect.Request[NavigateRequest]) (*connect.Response[StateResponse], error)
	TogglePause(context.Context, *connect.Request[TogglePauseRequest]) (*connect.Response[StateResponse], error)
	GetState(context.Context, *connect.Request[GetStateRequest]) (*connect.Response[StateResponse], error)
	SetContext(context.Context, *connect.Request[SetContextRequest]) (*connect.Response[ContextResponse], error)
	GetContext(context.Context, *connect.Request[GetContextRequest]) (*connect.Response[ContextResponse], error)
	Save(context.Context, *connect.Request[SaveRequest]) (*connect.Response[SaveResponse], error)
	Load(context.Context, *connect.Request[LoadRequest]) (*connect.Response[StateResponse], error)
	ListSlots(context.Context, *connect.Request[ListSlotsRequest]) (*connect.Response[ListSlotsResponse], error)
	ListConversations(context.Context, *connect.Request[ListConversationsRequest]) (*connect.Response[ListConversationsResponse], error)
	WatchEvents(context.Context, *connect.Request[WatchEventsRequest], *connect.ServerStream[events.Envelope]) error
}

// NewDialogueServiceHandler builds an HTTP handler serving svc and returns
// the path to mount it on. Callers must pass a JSON codec option such as
// connectutil.WithJSON.
func NewDialogueServiceHandler(svc DialogueServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	mux := http.NewServeMux()
	mux.Handle(StartSessionProcedure, connect.NewUnaryHandler(StartSessionProcedure, svc.StartSession, opts...))
	mux.Handle(EndSessionProcedure, connect.NewUnaryHandler(EndSessionProcedure, svc.EndSession, opts...))
	mux.Handle(StartDialogueProcedure, connect.NewUnaryHandler(StartDialogueProcedure, svc.StartDialogue, opts...))
	mux.Handle(ActivateProcedure, connect.NewUnaryHandler(ActivateProcedure, svc.Activate, opts...))
	mux.Handle(StartOneLineProcedure, connect.NewUnaryHandler(StartOneLineProcedure, svc.StartOneLine, opts...))
	mux.Handle(SkipProcedure, connect.NewUnaryHandler(SkipProcedure, svc.Skip, opts...))
	mux.Handle(SelectProcedure, connect.NewUnaryHandler(SelectProcedure, svc.Select, opts...))
	mux.Handle(HoverProcedure, connect.NewUnaryHandler(HoverProcedure, svc.Hover, opts...))
	mux.Handle(NavigateProcedure, connect.NewUnaryHandler(NavigateProcedure, svc.Navigate, opts...))
	mux.Handle(TogglePauseProcedure, connect.NewUnaryHandler(TogglePauseProcedure, svc.TogglePause, opts...))
	mux.Handle(GetStateProcedure, connect.NewUnaryHandler(GetStateProcedure, svc.GetState, opts...))
	mux.Handle(SetContextProcedure, connect.NewUnaryHandler(SetContextProcedure, svc.SetContext, opts...))
	mux.Handle(GetContextProcedure, connect.NewUnaryHandler(GetContextProcedure, svc.GetContext, opts...))
	mux.Handle(SaveProcedure, connect.NewUnaryHandler(SaveProcedure, svc.Save, opts...))
	mux.Handle(LoadProcedure, connect.NewUnaryHandler(LoadProcedure, svc.Load, opts...))
	mux.Handle(ListSlotsProcedure, connect.NewUnaryHandler(ListSlotsProcedure, svc.ListSlots, opts...))
	mux.Handle(ListConversationsProcedure, connect.NewUnaryHandler(ListConversationsProcedure, svc.ListConversations, opts...))
	mux.Handle(WatchEventsProcedure, connect.NewServerStreamHandler(WatchEventsProcedure, svc.WatchEvents, opts...))
	return "/" + ServiceName + "/", mux
}
