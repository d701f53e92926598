// Package probe implements the match-debug gRPC service.
//
// The service replays historical alerts through the stored rule groups, with
// one group replaced by (or added as) the group being edited, and reports how
// many alerts each rule would claim. A deletion probe instead previews
// dispatch with some groups removed. Alerts enter the replay history through
// ReportAlerts.
//
// Messages travel as google.protobuf.Struct documents carrying the JSON
// shapes of internal/types, so the service is declared by hand instead of
// from generated stubs.
package probe

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "dispatchkeeper.probe.v1.MatchDebug"

const (
	debugMethod        = "/" + ServiceName + "/Debug"
	reportAlertsMethod = "/" + ServiceName + "/ReportAlerts"
)

// MatchDebugServer is the server API of the match-debug service.
type MatchDebugServer interface {
	Debug(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	ReportAlerts(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

// RegisterMatchDebugServer registers srv on s.
func RegisterMatchDebugServer(s grpc.ServiceRegistrar, srv MatchDebugServer) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MatchDebugServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Debug", Handler: unaryHandler(debugMethod, MatchDebugServer.Debug)},
		{MethodName: "ReportAlerts", Handler: unaryHandler(reportAlertsMethod, MatchDebugServer.ReportAlerts)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "dispatchkeeper/probe/v1/probe.proto",
}

// unaryHandler adapts a Struct-in Struct-out method to grpc.MethodHandler.
func unaryHandler(fullMethod string, call func(MatchDebugServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(MatchDebugServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(MatchDebugServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}
