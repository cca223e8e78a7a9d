// Package pingdemo is a minimal service used by this module's own
// tests to exercise the generated-code contract (SPEC_FULL.md §4)
// without depending on protoc: it reuses the well-known wrapper
// messages that ship with google.golang.org/protobuf as stand-ins for
// generated request/response types.
package pingdemo

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/rpcgo/rpcgo"
)

// PingProcedure is this service's single unary method.
const PingProcedure = "/rpcgo.demo.v1.PingService/Ping"

// SumProcedure accumulates a client stream of integers into one total.
const SumProcedure = "/rpcgo.demo.v1.PingService/Sum"

// CountProcedure streams integers from 1 up to the request's value.
const CountProcedure = "/rpcgo.demo.v1.PingService/Count"

// EchoProcedure is a bidirectional echo used to exercise full-duplex
// framing.
const EchoProcedure = "/rpcgo.demo.v1.PingService/Echo"

// NewPingHandler builds the Ping unary Handler: it echoes the request
// string back, prefixed, or returns CodeInvalidArgument for an empty
// one.
func NewPingHandler(opts ...rpcgo.HandlerOption) *rpcgo.Handler {
	return rpcgo.NewUnaryHandler(PingProcedure, func(ctx context.Context, req *rpcgo.Request[wrapperspb.StringValue]) (*rpcgo.Response[wrapperspb.StringValue], error) {
		if req.Msg.GetValue() == "" {
			return nil, rpcgo.Errorf(rpcgo.CodeInvalidArgument, "value must not be empty")
		}
		return rpcgo.NewResponse(wrapperspb.String("pong:" + req.Msg.GetValue())), nil
	}, opts...)
}

// NewPingClient builds a Client for the Ping procedure.
func NewPingClient(httpClient rpcgo.HTTPClient, baseURL string, opts ...rpcgo.ClientOption) *rpcgo.Client[wrapperspb.StringValue, wrapperspb.StringValue] {
	return rpcgo.NewClient[wrapperspb.StringValue, wrapperspb.StringValue](httpClient, baseURL, PingProcedure, rpcgo.StreamTypeUnary, opts...)
}

// NewSumHandler builds the Sum client-streaming Handler.
func NewSumHandler(opts ...rpcgo.HandlerOption) *rpcgo.Handler {
	return rpcgo.NewClientStreamHandler(SumProcedure, func(ctx context.Context, stream *rpcgo.ClientStream[wrapperspb.Int64Value]) (*rpcgo.Response[wrapperspb.Int64Value], error) {
		var total int64
		for stream.Receive() {
			total += stream.Msg().GetValue()
		}
		if err := stream.Err(); err != nil {
			return nil, err
		}
		return rpcgo.NewResponse(wrapperspb.Int64(total)), nil
	}, opts...)
}

// NewSumClient builds a Client for the Sum procedure.
func NewSumClient(httpClient rpcgo.HTTPClient, baseURL string, opts ...rpcgo.ClientOption) *rpcgo.Client[wrapperspb.Int64Value, wrapperspb.Int64Value] {
	return rpcgo.NewClient[wrapperspb.Int64Value, wrapperspb.Int64Value](httpClient, baseURL, SumProcedure, rpcgo.StreamTypeClient, opts...)
}

// NewCountHandler builds the Count server-streaming Handler.
func NewCountHandler(opts ...rpcgo.HandlerOption) *rpcgo.Handler {
	return rpcgo.NewServerStreamHandler(CountProcedure, func(ctx context.Context, req *rpcgo.Request[wrapperspb.Int64Value], stream *rpcgo.ServerStream[wrapperspb.Int64Value]) error {
		n := req.Msg.GetValue()
		if n < 0 {
			return rpcgo.Errorf(rpcgo.CodeInvalidArgument, "count must be non-negative, got %d", n)
		}
		for i := int64(1); i <= n; i++ {
			if err := stream.Send(wrapperspb.Int64(i)); err != nil {
				return err
			}
		}
		return nil
	}, opts...)
}

// NewCountClient builds a Client for the Count procedure.
func NewCountClient(httpClient rpcgo.HTTPClient, baseURL string, opts ...rpcgo.ClientOption) *rpcgo.Client[wrapperspb.Int64Value, wrapperspb.Int64Value] {
	return rpcgo.NewClient[wrapperspb.Int64Value, wrapperspb.Int64Value](httpClient, baseURL, CountProcedure, rpcgo.StreamTypeServer, opts...)
}

// NewEchoHandler builds the Echo bidi-streaming Handler.
func NewEchoHandler(opts ...rpcgo.HandlerOption) *rpcgo.Handler {
	return rpcgo.NewBidiStreamHandler(EchoProcedure, func(ctx context.Context, stream *rpcgo.BidiStream[wrapperspb.StringValue, wrapperspb.StringValue]) error {
		for {
			msg, err := stream.Receive()
			if err != nil {
				return unwrapEOF(err)
			}
			if err := stream.Send(wrapperspb.String(fmt.Sprintf("echo:%s", msg.GetValue()))); err != nil {
				return err
			}
		}
	}, opts...)
}

// NewEchoClient builds a Client for the Echo procedure.
func NewEchoClient(httpClient rpcgo.HTTPClient, baseURL string, opts ...rpcgo.ClientOption) *rpcgo.Client[wrapperspb.StringValue, wrapperspb.StringValue] {
	return rpcgo.NewClient[wrapperspb.StringValue, wrapperspb.StringValue](httpClient, baseURL, EchoProcedure, rpcgo.StreamTypeBidi, opts...)
}

func unwrapEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
