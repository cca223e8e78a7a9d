package rpcgo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func TestProtoCodecRoundTrip(t *testing.T) {
	codec := protoCodec{}
	msg := wrapperspb.String("hello world")

	data, err := codec.Marshal(msg)
	require.NoError(t, err)

	var decoded wrapperspb.StringValue
	require.NoError(t, codec.Unmarshal(data, &decoded))
	assert.Equal(t, msg.GetValue(), decoded.GetValue())
}

func TestProtoCodecRejectsNonProtoMessage(t *testing.T) {
	codec := protoCodec{}
	_, err := codec.Marshal("not a proto message")
	assert.Error(t, err)
}

func TestJSONCodecRoundTrip(t *testing.T) {
	codec := newJSONCodec()
	msg := wrapperspb.Int64(42)

	data, err := codec.Marshal(msg)
	require.NoError(t, err)
	assert.Contains(t, string(data), "42")

	var decoded wrapperspb.Int64Value
	require.NoError(t, codec.Unmarshal(data, &decoded))
	assert.Equal(t, msg.GetValue(), decoded.GetValue())
}

func TestReadOnlyCodecsDefaultsToProto(t *testing.T) {
	codecs := newReadOnlyCodecs(map[string]Codec{protoName: protoCodec{}, jsonName: newJSONCodec()})

	codec, ok := codecs.Get("")
	require.True(t, ok)
	assert.Equal(t, protoName, codec.Name())

	_, ok = codecs.Get("nonexistent")
	assert.False(t, ok)
}
