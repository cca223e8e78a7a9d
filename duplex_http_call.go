package rpcgo

import (
	"context"
	"io"
	"net/http"
	"sync"

	"golang.org/x/sync/errgroup"
)

// HTTPClient is the subset of *http.Client a Client depends on, so
// tests can substitute a fake transport (grounded on the teacher's own
// client.go, which takes an HTTPClient interface rather than a
// concrete *http.Client).
type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// duplexHTTPCall manages one HTTP/2 request/response exchange whose
// request body is written concurrently with its response being read,
// which is how every streaming shape in spec §4.2 (Envelope) maps onto
// a single HTTP transaction. An errgroup.Group supervises the
// goroutine that calls httpClient.Do, so any transport-level failure
// (including a stream reset, spec §4.9) surfaces through Wait rather
// than being dropped silently.
type duplexHTTPCall struct {
	ctx        context.Context
	group      *errgroup.Group
	httpClient HTTPClient
	request    *http.Request

	requestBodyReader *io.PipeReader
	requestBodyWriter *io.PipeWriter

	responseReady chan struct{}

	mu       sync.Mutex
	response *http.Response
	err      error
}

func newDuplexHTTPCall(ctx context.Context, httpClient HTTPClient, url, method string, header http.Header) *duplexHTTPCall {
	pr, pw := io.Pipe()
	request, err := http.NewRequestWithContext(ctx, method, url, pr)
	group, groupCtx := errgroup.WithContext(ctx)
	if err != nil {
		// Deferred: surfaced on the first Send/Receive via d.err so
		// construction never needs to return an error itself.
		pw.CloseWithError(err)
	}
	if request != nil {
		request.Header = header
	}
	call := &duplexHTTPCall{
		ctx:               groupCtx,
		group:             group,
		httpClient:        httpClient,
		request:           request,
		requestBodyReader: pr,
		requestBodyWriter: pw,
		responseReady:     make(chan struct{}),
		err:               err,
	}
	return call
}

// Send starts the underlying HTTP round trip in the background. It
// must be called exactly once, before the first Write.
func (d *duplexHTTPCall) Send() {
	if d.err != nil {
		close(d.responseReady)
		return
	}
	d.group.Go(func() error {
		resp, err := d.httpClient.Do(d.request)
		d.mu.Lock()
		d.response, d.err = resp, err
		d.mu.Unlock()
		close(d.responseReady)
		if err != nil {
			return err
		}
		return nil
	})
}

func (d *duplexHTTPCall) Write(p []byte) (int, error) {
	return d.requestBodyWriter.Write(p)
}

// CloseWrite signals that no more request messages will be sent,
// letting the server observe end-of-stream on its side of the request
// body (spec §4.2: client-streaming and bidi half-close).
func (d *duplexHTTPCall) CloseWrite() error {
	return d.requestBodyWriter.Close()
}

// BlockUntilResponseReady waits for response headers, returning once
// the HTTP round trip has progressed far enough to read them, or the
// transport error that prevented that from happening.
func (d *duplexHTTPCall) BlockUntilResponseReady() (*http.Response, error) {
	<-d.responseReady
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.response, d.err
}

// CloseRead releases the response body and waits for the background
// goroutine to finish, folding any late transport error (e.g. a
// mid-stream RST_STREAM) into the return value.
func (d *duplexHTTPCall) CloseRead() error {
	d.mu.Lock()
	resp := d.response
	d.mu.Unlock()
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err := d.group.Wait(); err != nil {
		return err
	}
	return nil
}
