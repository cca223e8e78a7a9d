package rpcgo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeMarshalTextRoundTrip(t *testing.T) {
	for code := minCode; code <= maxCode; code++ {
		text, err := code.MarshalText()
		require.NoError(t, err)

		var decoded Code
		require.NoError(t, decoded.UnmarshalText(text))
		assert.Equal(t, code, decoded)
	}
}

func TestCodeUnmarshalTextAcceptsCapsName(t *testing.T) {
	var c Code
	require.NoError(t, c.UnmarshalText([]byte("NOT_FOUND")))
	assert.Equal(t, CodeNotFound, c)

	require.NoError(t, c.UnmarshalText([]byte("CANCELLED")))
	assert.Equal(t, CodeCanceled, c)
}

func TestCodeUnmarshalTextRejectsOutOfRange(t *testing.T) {
	var c Code
	assert.Error(t, c.UnmarshalText([]byte("17")))
	assert.Error(t, c.UnmarshalText([]byte("not-a-code")))
}

func TestCodeStringIsLowerSnakeCase(t *testing.T) {
	assert.Equal(t, "invalid_argument", CodeInvalidArgument.String())
	assert.Equal(t, "ok", CodeOK.String())
}

func TestCodeFromHTTP(t *testing.T) {
	assert.Equal(t, CodeOK, codeFromHTTP(200))
	assert.Equal(t, CodeUnauthenticated, codeFromHTTP(401))
	assert.Equal(t, CodeUnimplemented, codeFromHTTP(404))
	assert.Equal(t, CodeUnknown, codeFromHTTP(418))
}
