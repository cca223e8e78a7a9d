package rpcgo

import (
	"errors"
	"io"
	"net/http"
)

// ClientStream is a handler's view of a client-streaming call: zero or
// more request messages followed by one response.
type ClientStream[Req any] struct {
	conn StreamingHandlerConn
	msg  *Req
	err  *Error
}

// Receive advances to the next request message, returning false once
// the client has finished sending (check Err to distinguish a clean
// half-close from a transport error).
func (s *ClientStream[Req]) Receive() bool {
	if s.err != nil {
		return false
	}
	msg := new(Req)
	err := s.conn.Receive(msg)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			s.err = toError(err)
		}
		return false
	}
	s.msg = msg
	return true
}

func (s *ClientStream[Req]) Msg() *Req { return s.msg }
func (s *ClientStream[Req]) Err() error {
	if s.err == nil {
		return nil
	}
	return s.err
}

func (s *ClientStream[Req]) Peer() Peer                { return s.conn.Peer() }
func (s *ClientStream[Req]) RequestHeader() http.Header { return s.conn.RequestHeader() }

// ServerStream is a handler's view of a server-streaming call: the
// single request has already been delivered by the time the
// implementation function runs; it sends zero or more responses.
type ServerStream[Res any] struct {
	conn StreamingHandlerConn
}

func (s *ServerStream[Res]) Send(msg *Res) error { return s.conn.Send(msg) }

func (s *ServerStream[Res]) ResponseHeader() http.Header { return s.conn.ResponseHeader() }
func (s *ServerStream[Res]) ResponseTrailer() http.Header { return s.conn.ResponseTrailer() }

// BidiStream is a handler's view of a full-duplex call: request and
// response messages may interleave in any order the implementation
// chooses.
type BidiStream[Req, Res any] struct {
	conn StreamingHandlerConn
}

func (s *BidiStream[Req, Res]) Receive() (*Req, error) {
	msg := new(Req)
	if err := s.conn.Receive(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (s *BidiStream[Req, Res]) Send(msg *Res) error { return s.conn.Send(msg) }

func (s *BidiStream[Req, Res]) Peer() Peer                   { return s.conn.Peer() }
func (s *BidiStream[Req, Res]) RequestHeader() http.Header    { return s.conn.RequestHeader() }
func (s *BidiStream[Req, Res]) ResponseHeader() http.Header   { return s.conn.ResponseHeader() }
func (s *BidiStream[Req, Res]) ResponseTrailer() http.Header  { return s.conn.ResponseTrailer() }
