package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// Client is a thin typed wrapper over a connection to EventService.
type Client struct {
	conn grpc.ClientConnInterface
}

func NewClient(conn grpc.ClientConnInterface) *Client {
	EnsureCodec()
	return &Client{conn: conn}
}

func invoke[Resp any](ctx context.Context, c *Client, method string, in any) (*Resp, error) {
	out := new(Resp)
	if err := c.conn.Invoke(ctx, method, in, out, grpc.CallContentSubtype(CodecName)); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Login(ctx context.Context, in *LoginRequest) (*LoginResponse, error) {
	return invoke[LoginResponse](ctx, c, MethodLogin, in)
}

func (c *Client) CreateEvent(ctx context.Context, in *CreateEventRequest) (*EventIDResponse, error) {
	return invoke[EventIDResponse](ctx, c, MethodCreateEvent, in)
}

func (c *Client) UpdateEvent(ctx context.Context, in *UpdateEventRequest) (*EventIDResponse, error) {
	return invoke[EventIDResponse](ctx, c, MethodUpdateEvent, in)
}

func (c *Client) ListEvents(ctx context.Context, in *ListEventsRequest) (*ListEventsResponse, error) {
	return invoke[ListEventsResponse](ctx, c, MethodListEvents, in)
}

func (c *Client) GetEvent(ctx context.Context, in *GetEventRequest) (*GetEventResponse, error) {
	return invoke[GetEventResponse](ctx, c, MethodGetEvent, in)
}

func (c *Client) GetEventLogs(ctx context.Context, in *GetEventLogsRequest) (*GetEventLogsResponse, error) {
	return invoke[GetEventLogsResponse](ctx, c, MethodGetEventLogs, in)
}
