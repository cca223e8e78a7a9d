package rpcgo

import (
	"bytes"
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// frameMessages encodes msgs as back-to-back uncompressed gRPC frames,
// the wire form a ServeHTTP call reads its request body as.
func frameMessages(t *testing.T, msgs ...*wrapperspb.StringValue) []byte {
	t.Helper()
	var buf bytes.Buffer
	codec := protoCodec{}
	for _, msg := range msgs {
		raw, err := codec.Marshal(msg)
		require.NoError(t, err)
		var prefix [envelopePrefixLength]byte
		binary.BigEndian.PutUint32(prefix[1:], uint32(len(raw)))
		buf.Write(prefix[:])
		buf.Write(raw)
	}
	return buf.Bytes()
}

func postGRPC(t *testing.T, h http.Handler, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/test.Echo/Ping", bytes.NewReader(body))
	req.Header.Set("Content-Type", grpcContentTypePrefix)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// spec §4.8 step 5: a unary call with zero request messages fails
// CodeInternal, not the CodeUnknown a bare io.EOF would previously have
// produced.
func TestUnaryHandlerRejectsZeroRequestMessages(t *testing.T) {
	rec := postGRPC(t, echoHandler(), frameMessages(t))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, itoa(int(CodeInternal)), rec.Header().Get("Grpc-Status"))
}

// spec §4.8 step 5: a unary call with more than one request message is
// rejected rather than silently dropping the second message.
func TestUnaryHandlerRejectsMultipleRequestMessages(t *testing.T) {
	rec := postGRPC(t, echoHandler(), frameMessages(t, wrapperspb.String("one"), wrapperspb.String("two")))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, itoa(int(CodeInternal)), rec.Header().Get("Grpc-Status"))
}

// A single request message still round-trips normally.
func TestUnaryHandlerAcceptsExactlyOneRequestMessage(t *testing.T) {
	rec := postGRPC(t, echoHandler(), frameMessages(t, wrapperspb.String("hi")))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, itoa(int(CodeOK)), rec.Header().Get("Grpc-Status"))
}
