package rpcgo_test

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/rpcgo/rpcgo"
	"github.com/rpcgo/rpcgo/internal/pingdemo"
)

// newTestServer starts an h2c (cleartext HTTP/2) server around a Router
// and returns an HTTPClient that dials it over the same protocol, so
// tests exercise the real framing path end to end (spec §8).
func newTestServer(t *testing.T, router *rpcgo.Router) (rpcgo.HTTPClient, string) {
	t.Helper()
	server := httptest.NewServer(h2c.NewHandler(router, &http2.Server{}))
	t.Cleanup(server.Close)

	client := &http.Client{
		Transport: &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				return (&net.Dialer{}).DialContext(ctx, network, addr)
			},
		},
	}
	return client, "http://" + server.Listener.Addr().String()
}

func newPingRouter() *rpcgo.Router {
	router := rpcgo.NewRouter()
	router.Handle(pingdemo.NewPingHandler())
	router.Handle(pingdemo.NewSumHandler())
	router.Handle(pingdemo.NewCountHandler())
	router.Handle(pingdemo.NewEchoHandler())
	return router
}

// Scenario 1 (spec §8): unary echo. The Ping handler answers with the
// request value prefixed by "pong:"; response metadata is not checked.
func TestIntegrationUnaryEcho(t *testing.T) {
	httpClient, baseURL := newTestServer(t, newPingRouter())
	client := pingdemo.NewPingClient(httpClient, baseURL)

	req := rpcgo.NewRequest(wrapperspb.String("hello"))
	resp, err := client.CallUnary(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "pong:hello", resp.Msg.GetValue())
}

// Scenario: a handler-returned Status arrives as a trailers-only error
// before any DATA frame is written (spec §8 property 4).
func TestIntegrationUnaryHandlerError(t *testing.T) {
	httpClient, baseURL := newTestServer(t, newPingRouter())
	client := pingdemo.NewPingClient(httpClient, baseURL)

	req := rpcgo.NewRequest(wrapperspb.String(""))
	_, err := client.CallUnary(context.Background(), req)
	require.Error(t, err)
	rpcErr, ok := rpcgo.AsError(err)
	require.True(t, ok)
	assert.Equal(t, rpcgo.CodeInvalidArgument, rpcErr.Code())
}

// Scenario 2 (spec §8): server-streaming count, messages observed in order.
func TestIntegrationServerStreamingCount(t *testing.T) {
	httpClient, baseURL := newTestServer(t, newPingRouter())
	client := pingdemo.NewCountClient(httpClient, baseURL)

	stream, err := client.CallServerStream(context.Background(), rpcgo.NewRequest(wrapperspb.Int64(3)))
	require.NoError(t, err)

	var got []int64
	for stream.Receive() {
		got = append(got, stream.Msg().GetValue())
	}
	require.NoError(t, stream.Err())
	assert.Equal(t, []int64{1, 2, 3}, got)
}

// Scenario 6 (spec §8, simplified to half-duplex send-then-receive):
// bidirectional echo, each sent message observed in order on readback.
func TestIntegrationBidiEcho(t *testing.T) {
	httpClient, baseURL := newTestServer(t, newPingRouter())
	client := pingdemo.NewEchoClient(httpClient, baseURL)

	stream := client.CallBidiStream(context.Background())
	for _, word := range []string{"a", "b", "c"} {
		require.NoError(t, stream.Send(wrapperspb.String(word)))
	}
	require.NoError(t, stream.CloseRequest())

	var got []string
	for {
		msg, err := stream.Receive()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got = append(got, msg.GetValue())
	}
	assert.Equal(t, []string{"echo:a", "echo:b", "echo:c"}, got)
	require.NoError(t, stream.CloseResponse())
}

// Scenario 3 (spec §8): client-streaming sum whose handler runs longer
// than the client's deadline surfaces DEADLINE_EXCEEDED.
func TestIntegrationClientStreamingDeadlineExceeded(t *testing.T) {
	router := rpcgo.NewRouter()
	router.Handle(rpcgo.NewClientStreamHandler(
		pingdemo.SumProcedure,
		func(ctx context.Context, stream *rpcgo.ClientStream[wrapperspb.Int64Value]) (*rpcgo.Response[wrapperspb.Int64Value], error) {
			select {
			case <-time.After(time.Second):
				return rpcgo.NewResponse(wrapperspb.Int64(0)), nil
			case <-ctx.Done():
				return nil, rpcgo.NewError(rpcgo.CodeDeadlineExceeded, ctx.Err())
			}
		},
	))
	httpClient, baseURL := newTestServer(t, router)
	client := pingdemo.NewSumClient(httpClient, baseURL, rpcgo.WithTimeout(100*time.Millisecond))

	start := time.Now()
	stream := client.CallClientStream(context.Background())
	require.NoError(t, stream.Send(wrapperspb.Int64(1)))
	_, err := stream.CloseAndReceive()
	elapsed := time.Since(start)

	require.Error(t, err)
	rpcErr, ok := rpcgo.AsError(err)
	require.True(t, ok)
	assert.Equal(t, rpcgo.CodeDeadlineExceeded, rpcErr.Code())
	assert.Less(t, elapsed, 900*time.Millisecond)
}

// The client must bound a call itself, not merely ask the server to via
// grpc-timeout: a handler that never inspects ctx.Done() still has to
// produce DEADLINE_EXCEEDED for the caller within the configured
// timeout, not hang until the handler eventually returns.
func TestIntegrationClientEnforcesDeadlineAgainstNonCooperativeHandler(t *testing.T) {
	router := rpcgo.NewRouter()
	router.Handle(rpcgo.NewUnaryHandler(
		pingdemo.PingProcedure,
		func(ctx context.Context, req *rpcgo.Request[wrapperspb.StringValue]) (*rpcgo.Response[wrapperspb.StringValue], error) {
			time.Sleep(2 * time.Second)
			return rpcgo.NewResponse(wrapperspb.String("too late")), nil
		},
	))
	httpClient, baseURL := newTestServer(t, router)
	client := pingdemo.NewPingClient(httpClient, baseURL, rpcgo.WithTimeout(100*time.Millisecond))

	start := time.Now()
	_, err := client.CallUnary(context.Background(), rpcgo.NewRequest(wrapperspb.String("hi")))
	elapsed := time.Since(start)

	require.Error(t, err)
	rpcErr, ok := rpcgo.AsError(err)
	require.True(t, ok)
	assert.Equal(t, rpcgo.CodeDeadlineExceeded, rpcErr.Code())
	assert.Less(t, elapsed, time.Second)
}

// Scenario 4 (spec §8): an unregistered path gets a trailers-only
// UNIMPLEMENTED response.
func TestIntegrationUnknownMethodIsUnimplemented(t *testing.T) {
	httpClient, baseURL := newTestServer(t, newPingRouter())
	client := rpcgo.NewClient[wrapperspb.StringValue, wrapperspb.StringValue](
		httpClient, baseURL, "/rpcgo.demo.v1.PingService/DoesNotExist", rpcgo.StreamTypeUnary,
	)

	_, err := client.CallUnary(context.Background(), rpcgo.NewRequest(wrapperspb.String("x")))
	require.Error(t, err)
	rpcErr, ok := rpcgo.AsError(err)
	require.True(t, ok)
	assert.Equal(t, rpcgo.CodeUnimplemented, rpcErr.Code())
}

// Scenario 5 (spec §8): a request whose declared frame length exceeds
// the server's configured max_decoding_message_size is rejected with
// OUT_OF_RANGE.
func TestIntegrationOversizeMessageRejected(t *testing.T) {
	router := rpcgo.NewRouter()
	router.Handle(pingdemo.NewPingHandler(rpcgo.WithReadMaxBytes(8)))
	httpClient, baseURL := newTestServer(t, router)
	client := pingdemo.NewPingClient(httpClient, baseURL)

	big := make([]byte, 4096)
	for i := range big {
		big[i] = 'x'
	}
	_, err := client.CallUnary(context.Background(), rpcgo.NewRequest(wrapperspb.String(string(big))))
	require.Error(t, err)
	rpcErr, ok := rpcgo.AsError(err)
	require.True(t, ok)
	assert.Equal(t, rpcgo.CodeOutOfRange, rpcErr.Code())
}

// Compression is negotiated end to end: a gzip-compressed request is
// decompressed by the server, and the response comes back compressed
// too once the client advertises gzip in grpc-accept-encoding.
func TestIntegrationGzipCompressionRoundTrip(t *testing.T) {
	httpClient, baseURL := newTestServer(t, newPingRouter())
	client := pingdemo.NewPingClient(httpClient, baseURL, rpcgo.WithRequestCompression(rpcgo.CompressionGzip))

	resp, err := client.CallUnary(context.Background(), rpcgo.NewRequest(wrapperspb.String("zipped")))
	require.NoError(t, err)
	assert.Equal(t, "pong:zipped", resp.Msg.GetValue())
}
