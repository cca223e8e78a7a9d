package rpcgo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingInterceptor appends its name to a shared log on the way in
// and on the way out, so tests can assert onion ordering.
type recordingInterceptor struct {
	name string
	log  *[]string
}

func (i recordingInterceptor) WrapUnary(next UnaryFunc) UnaryFunc {
	return func(ctx context.Context, req AnyRequest) (AnyResponse, error) {
		*i.log = append(*i.log, i.name+":in")
		resp, err := next(ctx, req)
		*i.log = append(*i.log, i.name+":out")
		return resp, err
	}
}

func (i recordingInterceptor) WrapStreamingClient(next StreamingClientFunc) StreamingClientFunc {
	return next
}

func (i recordingInterceptor) WrapStreamingHandler(next StreamingHandlerFunc) StreamingHandlerFunc {
	return next
}

func TestChainWrapsUnaryInOnionOrder(t *testing.T) {
	var log []string
	first := recordingInterceptor{name: "first", log: &log}
	second := recordingInterceptor{name: "second", log: &log}

	base := UnaryFunc(func(ctx context.Context, req AnyRequest) (AnyResponse, error) {
		log = append(log, "base")
		return nil, nil
	})

	wrapped := newChain([]Interceptor{first, second}).WrapUnary(base)
	_, err := wrapped(context.Background(), &Request[struct{}]{})
	require.NoError(t, err)

	assert.Equal(t, []string{"first:in", "second:in", "base", "second:out", "first:out"}, log)
}

// shortCircuitInterceptor returns a Status without calling next,
// matching spec §4.6: "an interceptor ... may short-circuit by
// producing an immediate Status response."
type shortCircuitInterceptor struct{}

func (shortCircuitInterceptor) WrapUnary(UnaryFunc) UnaryFunc {
	return func(ctx context.Context, req AnyRequest) (AnyResponse, error) {
		return nil, Errorf(CodePermissionDenied, "denied by interceptor")
	}
}
func (shortCircuitInterceptor) WrapStreamingClient(next StreamingClientFunc) StreamingClientFunc {
	return next
}
func (shortCircuitInterceptor) WrapStreamingHandler(next StreamingHandlerFunc) StreamingHandlerFunc {
	return next
}

func TestChainShortCircuitsWithoutCallingInner(t *testing.T) {
	called := false
	base := UnaryFunc(func(ctx context.Context, req AnyRequest) (AnyResponse, error) {
		called = true
		return nil, nil
	})

	wrapped := newChain([]Interceptor{shortCircuitInterceptor{}}).WrapUnary(base)
	_, err := wrapped(context.Background(), &Request[struct{}]{})

	require.Error(t, err)
	e, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, CodePermissionDenied, e.Code())
	assert.False(t, called)
}

func TestMergeHeadersDoesNotOverwriteExisting(t *testing.T) {
	dst := map[string][]string{"x-existing": {"keep"}}
	src := map[string][]string{"x-existing": {"new"}, "x-added": {"value"}}

	mergeHeaders(dst, src)

	assert.Equal(t, []string{"keep", "new"}, dst["x-existing"])
	assert.Equal(t, []string{"value"}, dst["x-added"])
}
