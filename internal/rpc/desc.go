package rpc

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "scheduler.v1.EventService"

const (
	MethodLogin        = "/" + ServiceName + "/Login"
	MethodCreateEvent  = "/" + ServiceName + "/CreateEvent"
	MethodUpdateEvent  = "/" + ServiceName + "/UpdateEvent"
	MethodListEvents   = "/" + ServiceName + "/ListEvents"
	MethodGetEvent     = "/" + ServiceName + "/GetEvent"
	MethodGetEventLogs = "/" + ServiceName + "/GetEventLogs"
)

type eventServer interface {
	Login(context.Context, *LoginRequest) (*LoginResponse, error)
	CreateEvent(context.Context, *CreateEventRequest) (*EventIDResponse, error)
	UpdateEvent(context.Context, *UpdateEventRequest) (*EventIDResponse, error)
	ListEvents(context.Context, *ListEventsRequest) (*ListEventsResponse, error)
	GetEvent(context.Context, *GetEventRequest) (*GetEventResponse, error)
	GetEventLogs(context.Context, *GetEventLogsRequest) (*GetEventLogsResponse, error)
}

var _ eventServer = (*Server)(nil)

// Register adds the event service to r.
func Register(r grpc.ServiceRegistrar, s *Server) {
	r.RegisterService(&serviceDesc, s)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*eventServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Login", Handler: unary(MethodLogin, eventServer.Login)},
		{MethodName: "CreateEvent", Handler: unary(MethodCreateEvent, eventServer.CreateEvent)},
		{MethodName: "UpdateEvent", Handler: unary(MethodUpdateEvent, eventServer.UpdateEvent)},
		{MethodName: "ListEvents", Handler: unary(MethodListEvents, eventServer.ListEvents)},
		{MethodName: "GetEvent", Handler: unary(MethodGetEvent, eventServer.GetEvent)},
		{MethodName: "GetEventLogs", Handler: unary(MethodGetEventLogs, eventServer.GetEventLogs)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "scheduler/v1/event_service.proto",
}

// unary adapts one typed method to grpc's untyped handler signature.
func unary[Req, Resp any](fullMethod string, call func(eventServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(eventServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(eventServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}
