package rpcgo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func echoHandler() *Handler {
	return NewUnaryHandler("/test.Echo/Ping", func(ctx context.Context, req *Request[wrapperspb.StringValue]) (*Response[wrapperspb.StringValue], error) {
		return NewResponse(wrapperspb.String(req.Msg.GetValue())), nil
	})
}

func TestRouterDispatchesRegisteredPath(t *testing.T) {
	router := NewRouter()
	router.Handle(echoHandler())

	req := httptest.NewRequest(http.MethodPost, "/test.Echo/Ping", nil)
	req.Header.Set("Content-Type", "application/grpc")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	// The handler will fail to decode a nil body, but it must be the one
	// invoked (not the unimplemented fallback): trailers carry an
	// rpcgo-internal status, not CodeUnimplemented.
	assert.NotEqual(t, itoa(int(CodeUnimplemented)), rec.Header().Get("Grpc-Status"))
}

func TestRouterMethodMismatchIsTrailersOnlyUnimplemented(t *testing.T) {
	router := NewRouter()
	router.Handle(echoHandler())

	req := httptest.NewRequest(http.MethodGet, "/test.Echo/Ping", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, itoa(int(CodeUnimplemented)), rec.Header().Get("Grpc-Status"))
	assert.Equal(t, grpcContentTypePrefix, rec.Header().Get("Content-Type"))
	assert.Empty(t, rec.Body.Bytes())
}

func TestRouterUnknownPathIsTrailersOnlyUnimplemented(t *testing.T) {
	router := NewRouter()
	router.Handle(echoHandler())

	req := httptest.NewRequest(http.MethodPost, "/test.Echo/DoesNotExist", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, itoa(int(CodeUnimplemented)), rec.Header().Get("Grpc-Status"))
	assert.Equal(t, grpcContentTypePrefix, rec.Header().Get("Content-Type"))
	assert.Empty(t, rec.Body.Bytes())
}
