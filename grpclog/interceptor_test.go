package grpclog

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/rpcgo/rpcgo"
)

func newObservedInterceptor() (*Interceptor, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return New(zap.New(core)), logs
}

func TestInterceptorLogsPeerOnUnaryCall(t *testing.T) {
	i, logs := newObservedInterceptor()
	req := rpcgo.NewRequest(wrapperspb.String("hi"))

	wrapped := i.WrapUnary(func(ctx context.Context, req rpcgo.AnyRequest) (rpcgo.AnyResponse, error) {
		return rpcgo.NewResponse(wrapperspb.String("ok")), nil
	})
	_, err := wrapped(context.Background(), req)
	require.NoError(t, err)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "", entry.ContextMap()["peer"]) // NewRequest leaves peer zero-valued client-side
	assert.Equal(t, zapcore.DebugLevel, entry.Level)
}

func TestInterceptorLevelSplitsBySeverity(t *testing.T) {
	cases := []struct {
		name  string
		err   error
		level zapcore.Level
	}{
		{"ok", nil, zapcore.DebugLevel},
		{"canceled", rpcgo.NewError(rpcgo.CodeCanceled, context.Canceled), zapcore.DebugLevel},
		{"client fault", rpcgo.Errorf(rpcgo.CodeInvalidArgument, "bad input"), zapcore.InfoLevel},
		{"server fault", rpcgo.Errorf(rpcgo.CodeInternal, "boom"), zapcore.ErrorLevel},
		{"unavailable", rpcgo.Errorf(rpcgo.CodeUnavailable, "down"), zapcore.ErrorLevel},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			i, logs := newObservedInterceptor()
			wrapped := i.WrapUnary(func(ctx context.Context, req rpcgo.AnyRequest) (rpcgo.AnyResponse, error) {
				if tc.err != nil {
					return nil, tc.err
				}
				return rpcgo.NewResponse(wrapperspb.String("ok")), nil
			})
			_, _ = wrapped(context.Background(), rpcgo.NewRequest(wrapperspb.String("x")))

			require.Equal(t, 1, logs.Len())
			assert.Equal(t, tc.level, logs.All()[0].Level)
		})
	}
}

func TestInterceptorLogsStreamingPeerFromConn(t *testing.T) {
	i, logs := newObservedInterceptor()
	conn := &fakeStreamingHandlerConn{peer: rpcgo.Peer{Addr: "10.0.0.1:1234"}}

	wrapped := i.WrapStreamingHandler(func(ctx context.Context, conn rpcgo.StreamingHandlerConn) error {
		return nil
	})
	require.NoError(t, wrapped(context.Background(), conn))

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "10.0.0.1:1234", logs.All()[0].ContextMap()["peer"])
}

type fakeStreamingHandlerConn struct {
	peer rpcgo.Peer
}

func (c *fakeStreamingHandlerConn) Spec() rpcgo.Spec               { return rpcgo.Spec{} }
func (c *fakeStreamingHandlerConn) Peer() rpcgo.Peer                { return c.peer }
func (c *fakeStreamingHandlerConn) Receive(msg any) error           { return nil }
func (c *fakeStreamingHandlerConn) RequestHeader() http.Header      { return make(http.Header) }
func (c *fakeStreamingHandlerConn) Send(msg any) error              { return nil }
func (c *fakeStreamingHandlerConn) ResponseHeader() http.Header     { return make(http.Header) }
func (c *fakeStreamingHandlerConn) ResponseTrailer() http.Header    { return make(http.Header) }

var _ rpcgo.StreamingHandlerConn = (*fakeStreamingHandlerConn)(nil)
