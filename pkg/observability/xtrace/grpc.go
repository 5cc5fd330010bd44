package xtrace

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/lidz/tasks/pkg/context/xctx"
)

// =============================================================================
// gRPC 身份解析
// =============================================================================

// ResolveMetadata 与 [Resolver.Resolve] 相同的解析顺序，traceparent 取自 gRPC metadata
func (r *Resolver) ResolveMetadata(ctx context.Context, md metadata.MD) xctx.Trace {
	var traceparent string
	if vs := md.Get(MetaTraceparent); len(vs) > 0 {
		traceparent = vs[0]
	}
	return r.resolve(ctx, traceparent)
}

func (r *Resolver) resolveIncoming(ctx context.Context) xctx.Trace {
	md, _ := metadata.FromIncomingContext(ctx)
	return r.ResolveMetadata(ctx, md)
}

// =============================================================================
// gRPC 服务端拦截器
// =============================================================================

// GRPCUnaryServerInterceptor 返回 gRPC 一元服务端拦截器。
// 解析追踪身份，handler 在 [xctx.Run] 内执行。Resolver 禁用时直接透传。
func GRPCUnaryServerInterceptor(r *Resolver) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		_ *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if r == nil || !r.Enabled() {
			return handler(ctx, req)
		}
		var resp any
		err := xctx.Run(ctx, r.resolveIncoming(ctx), func(ctx context.Context) error {
			var herr error
			resp, herr = handler(ctx, req)
			return herr
		})
		return resp, err
	}
}

// GRPCStreamServerInterceptor 返回 gRPC 流式服务端拦截器。
// 整个流的生命周期共享一个追踪身份。
func GRPCStreamServerInterceptor(r *Resolver) grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		_ *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		if r == nil || !r.Enabled() {
			return handler(srv, ss)
		}
		return xctx.Run(ss.Context(), r.resolveIncoming(ss.Context()), func(ctx context.Context) error {
			return handler(srv, &wrappedServerStream{ServerStream: ss, ctx: ctx})
		})
	}
}

// wrappedServerStream 包装 ServerStream 以覆盖 Context
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

// Context 返回绑定了追踪身份的 context
func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}

// =============================================================================
// gRPC 客户端拦截器
// =============================================================================

// GRPCUnaryClientInterceptor 返回 gRPC 客户端一元拦截器，出站调用携带 traceparent
func GRPCUnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req, reply any,
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		return invoker(InjectToOutgoingContext(ctx), method, req, reply, cc, opts...)
	}
}

// GRPCStreamClientInterceptor 返回 gRPC 客户端流式拦截器，出站调用携带 traceparent
func GRPCStreamClientInterceptor() grpc.StreamClientInterceptor {
	return func(
		ctx context.Context,
		desc *grpc.StreamDesc,
		cc *grpc.ClientConn,
		method string,
		streamer grpc.Streamer,
		opts ...grpc.CallOption,
	) (grpc.ClientStream, error) {
		return streamer(InjectToOutgoingContext(ctx), desc, cc, method, opts...)
	}
}

// InjectToOutgoingContext 将 ctx 中的追踪身份写入 outgoing metadata。
// ctx 中没有身份时原样返回；已有 metadata 被复制，不修改原值。
func InjectToOutgoingContext(ctx context.Context) context.Context {
	tp := traceparentFromContext(ctx)
	if tp == "" {
		return ctx
	}
	md, ok := metadata.FromOutgoingContext(ctx)
	if ok {
		md = md.Copy()
	} else {
		md = metadata.New(nil)
	}
	md.Set(MetaTraceparent, tp)
	return metadata.NewOutgoingContext(ctx, md)
}
