package dmesim

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	_ "github.com/mobiledgex/matchingengine/pkg/codec" // registers the json and cbor codecs
	"github.com/mobiledgex/matchingengine/pkg/dme"
)

// unary adapts an Engine operation to a gRPC method handler. The request
// is decoded with whichever codec the caller's content subtype selects.
func unary[Req, Reply any](method string, fn func(*Engine, context.Context, *Req) (*Reply, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			req := new(Req)
			if err := dec(req); err != nil {
				return nil, err
			}
			e := srv.(*Engine)
			call := func(ctx context.Context, r any) (any, error) {
				return fn(e, withRPCPeer(ctx), r.(*Req))
			}
			if interceptor == nil {
				return call(ctx, req)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + dme.ServiceName + "/" + method}
			return interceptor(ctx, req, info, call)
		},
	}
}

func withRPCPeer(ctx context.Context) context.Context {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ctx
	}
	host, _, err := net.SplitHostPort(p.Addr.String())
	if err != nil {
		host = p.Addr.String()
	}
	return WithPeer(ctx, host)
}

// engineServer is the handler type checked by grpc.Server.RegisterService.
type engineServer interface {
	RegisterClient(context.Context, *dme.RegisterClientRequest) (*dme.RegisterClientReply, error)
}

// ServiceDesc describes the matching engine service for the Engine.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: dme.ServiceName,
	HandlerType: (*engineServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(dme.RegisterClientAPI.Name, (*Engine).RegisterClient),
		unary(dme.VerifyLocationAPI.Name, (*Engine).VerifyLocation),
		unary(dme.FindCloudletAPI.Name, (*Engine).FindCloudlet),
		unary(dme.GetLocationAPI.Name, (*Engine).GetLocation),
		unary(dme.GetAppInstListAPI.Name, (*Engine).GetAppInstList),
		unary(dme.DynamicLocGroupAPI.Name, (*Engine).AddUserToGroup),
		unary(dme.GetFqdnListAPI.Name, (*Engine).GetFqdnList),
		unary(dme.QosPositionKpiAPI.Name, (*Engine).GetQosPositionKpi),
	},
}

// NewGRPCServer returns a gRPC server exposing e and the standard health
// service. opts are appended after the logging interceptor, e.g. TLS
// credentials.
func NewGRPCServer(e *Engine, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(loggingInterceptor(e.logger, e.metrics)),
	}, opts...)
	srv := grpc.NewServer(opts...)
	srv.RegisterService(&ServiceDesc, e)

	healthSvc := health.NewServer()
	grpc_health_v1.RegisterHealthServer(srv, healthSvc)
	healthSvc.SetServingStatus(dme.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	return srv
}

// loggingInterceptor returns a gRPC unary server interceptor that logs and
// counts each call.
func loggingInterceptor(logger *zap.Logger, m *Metrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err).String()
		m.rpcTotal.WithLabelValues(info.FullMethod, code).Inc()
		logger.Info("grpc",
			zap.String("method", info.FullMethod),
			zap.String("code", code),
			zap.Duration("latency", time.Since(start)),
		)
		return resp, err
	}
}
