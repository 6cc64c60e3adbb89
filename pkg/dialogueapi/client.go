package dialogueapi

import (
	"context"
	"strings"

	"connectrpc.com/connect"

	"github.com/voicetyped/dialoguekit/pkg/events"
)

// Client calls a DialogueService over Connect.
type Client struct {
	startSession      *connect.Client[StartSessionRequest, StartSessionResponse]
	endSession        *connect.Client[EndSessionRequest, EndSessionResponse]
	startDialogue     *connect.Client[StartDialogueRequest, StateResponse]
	activate          *connect.Client[ActivateRequest, StateResponse]
	startOneLine      *connect.Client[StartOneLineRequest, StateResponse]
	skip              *connect.Client[SkipRequest, StateResponse]
	selectOption      *connect.Client[SelectRequest, StateResponse]
	hover             *connect.Client[HoverRequest, StateResponse]
	navigate          *connect.Client[NavigateRequest, StateResponse]
	togglePause       *connect.Client[TogglePauseRequest, StateResponse]
	getState          *connect.Client[GetStateRequest, StateResponse]
	setContext        *connect.Client[SetContextRequest, ContextResponse]
	getContext        *connect.Client[GetContextRequest, ContextResponse]
	save              *connect.Client[SaveRequest, SaveResponse]
	load              *connect.Client[LoadRequest, StateResponse]
	listSlots         *connect.Client[ListSlotsRequest, ListSlotsResponse]
	listConversations *connect.Client[ListConversationsRequest, ListConversationsResponse]
	watchEvents       *connect.Client[WatchEventsRequest, events.Envelope]
}

// NewClient creates a client for the service at baseURL. Callers must pass
// a JSON codec option such as connectutil.WithJSON.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	return &Client{
		startSession:      connect.NewClient[StartSessionRequest, StartSessionResponse](httpClient, baseURL+StartSessionProcedure, opts...),
		endSession:        connect.NewClient[EndSessionRequest, EndSessionResponse](httpClient, baseURL+EndSessionProcedure, opts...),
		startDialogue:     connect.NewClient[StartDialogueRequest, StateResponse](httpClient, baseURL+StartDialogueProcedure, opts...),
		activate:          connect.NewClient[ActivateRequest, StateResponse](httpClient, baseURL+ActivateProcedure, opts...),
		startOneLine:      connect.NewClient[StartOneLineRequest, StateResponse](httpClient, baseURL+StartOneLineProcedure, opts...),
		skip:              connect.NewClient[SkipRequest, StateResponse](httpClient, baseURL+SkipProcedure, opts...),
		selectOption:      connect.NewClient[SelectRequest, StateResponse](httpClient, baseURL+SelectProcedure, opts...),
		hover:             connect.NewClient[HoverRequest, StateResponse](httpClient, baseURL+HoverProcedure, opts...),
		navigate:          connect.NewClient[NavigateRequest, StateResponse](httpClient, baseURL+NavigateProcedure, opts...),
		togglePause:       connect.NewClient[TogglePauseRequest, StateResponse](httpClient, baseURL+TogglePauseProcedure, opts...),
		getState:          connect.NewClient[GetStateRequest, StateResponse](httpClient, baseURL+GetStateProcedure, opts...),
		setContext:        connect.NewClient[SetContextRequest, ContextResponse](httpClient, baseURL+SetContextProcedure, opts...),
		getContext:        connect.NewClient[GetContextRequest, ContextResponse](httpClient, baseURL+GetContextProcedure, opts...),
		save:              connect.NewClient[SaveRequest, SaveResponse](httpClient, baseURL+SaveProcedure, opts...),
		load:              connect.NewClient[LoadRequest, StateResponse](httpClient, baseURL+LoadProcedure, opts...),
		listSlots:         connect.NewClient[ListSlotsRequest, ListSlotsResponse](httpClient, baseURL+ListSlotsProcedure, opts...),
		listConversations: connect.NewClient[ListConversationsRequest, ListConversationsResponse](httpClient, baseURL+ListConversationsProcedure, opts...),
		watchEvents:       connect.NewClient[WatchEventsRequest, events.Envelope](httpClient, baseURL+WatchEventsProcedure, opts...),
	}
}

func (c *Client) StartSession(ctx context.Context, req *connect.Request[StartSessionRequest]) (*connect.Response[StartSessionResponse], error) {
	return c.startSession.CallUnary(ctx, req)
}

func (c *Client) EndSession(ctx context.Context, req *connect.Request[EndSessionRequest]) (*connect.Response[EndSessionResponse], error) {
	return c.endSession.CallUnary(ctx, req)
}

func (c *Client) StartDialogue(ctx context.Context, req *connect.Request[StartDialogueRequest]) (*connect.Response[StateResponse], error) {
	return c.startDialogue.CallUnary(ctx, req)
}

func (c *Client) Activate(ctx context.Context, req *connect.Request[ActivateRequest]) (*connect.Response[StateResponse], error) {
	return c.activate.CallUnary(ctx, req)
}

func (c *Client) StartOneLine(ctx context.Context, req *connect.Request[StartOneLineRequest]) (*connect.Response[StateResponse], error) {
	return c.startOneLine.CallUnary(ctx, req)
}

func (c *Client) Skip(ctx context.Context, req *connect.Request[SkipRequest]) (*connect.Response[StateResponse], error) {
	return c.skip.CallUnary(ctx, req)
}

func (c *Client) Select(ctx context.Context, req *connect.Request[SelectRequest]) (*connect.Response[StateResponse], error) {
	return c.selectOption.CallUnary(ctx, req)
}

func (c *Client) Hover(ctx context.Context, req *connect.Request[HoverRequest]) (*connect.Response[StateResponse], error) {
	return c.hover.CallUnary(ctx, req)
}

func (c *Client) Navigate(ctx context.Context, req *connect.Request[NavigateRequest]) (*connect.Response[StateResponse], error) {
	return c.navigate.CallUnary(ctx, req)
}

func (c *Client) TogglePause(ctx context.Context, req *connect.Request[TogglePauseRequest]) (*connect.Response[StateResponse], error) {
	return c.togglePause.CallUnary(ctx, req)
}

func (c *Client) GetState(ctx context.Context, req *connect.Request[GetStateRequest]) (*connect.Response[StateResponse], error) {
	return c.getState.CallUnary(ctx, req)
}

func (c *Client) SetContext(ctx context.Context, req *connect.Request[SetContextRequest]) (*connect.Response[ContextResponse], error) {
	return c.setContext.CallUnary(ctx, req)
}

func (c *Client) GetContext(ctx context.Context, req *connect.Request[GetContextRequest]) (*connect.Response[ContextResponse], error) {
	return c.getContext.CallUnary(ctx, req)
}

func (c *Client) Save(ctx context.Context, req *connect.Request[SaveRequest]) (*connect.Response[SaveResponse], error) {
	return c.save.CallUnary(ctx, req)
}

func (c *Client) Load(ctx context.Context, req *connect.Request[LoadRequest]) (*connect.Response[StateResponse], error) {
	return c.load.CallUnary(ctx, req)
}

func (c *Client) ListSlots(ctx context.Context, req *connect.Request[ListSlotsRequest]) (*connect.Response[ListSlotsResponse], error) {
	return c.listSlots.CallUnary(ctx, req)
}

func (c *Client) ListConversations(ctx context.Context, req *connect.Request[ListConversationsRequest]) (*connect.Response[ListConversationsResponse], error) {
	return c.listConversations.CallUnary(ctx, req)
}

// WatchEvents opens the event stream for one session.
func (c *Client) WatchEvents(ctx context.Context, req *connect.Request[WatchEventsRequest]) (*connect.ServerStreamForClient[events.Envelope], error) {
	return c.watchEvents.CallServerStream(ctx, req)
}
