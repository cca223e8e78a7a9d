package rpcgo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/net/http2"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"

	statuspb "google.golang.org/genproto/googleapis/rpc/status"
)

// Error is the only error type that crosses the gRPC boundary. Every
// error returned by a handler, interceptor, or client call can be
// recovered with errors.As.
type Error struct {
	code    Code
	message string
	details []*anypb.Any
	meta    Metadata
	cause   error
}

// NewError constructs an Error from a code and an underlying cause. If
// err is already an *Error, its code and message are reused.
func NewError(code Code, err error) *Error {
	if err == nil {
		return &Error{code: code}
	}
	if e, ok := AsError(err); ok {
		return e
	}
	return &Error{code: code, message: err.Error(), cause: err}
}

// Errorf constructs an Error from a code and a format string, mirroring
// fmt.Errorf (including %w cause wrapping).
func Errorf(code Code, format string, args ...any) *Error {
	err := fmt.Errorf(format, args...)
	return &Error{code: code, message: err.Error(), cause: errors.Unwrap(err)}
}

func (e *Error) Error() string {
	if e.message == "" {
		return e.code.String()
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

// Code returns the status code. Constructing an Error always succeeds;
// a zero-value Error reports CodeOK, the zero value of Code.
func (e *Error) Code() Code { return e.code }

// Message returns the human-readable status message, without any
// wire-format escaping.
func (e *Error) Message() string { return e.message }

// Unwrap returns the underlying cause, if any, allowing errors.Is and
// errors.As to see through an Error to its origin.
func (e *Error) Unwrap() error { return e.cause }

// Details returns any structured error details attached to the status,
// most commonly recovered from a grpc-status-details-bin trailer.
func (e *Error) Details() []*anypb.Any { return e.details }

// AddDetail marshals msg into an anypb.Any and attaches it to the error.
func (e *Error) AddDetail(msg proto.Message) error {
	any, err := anypb.New(msg)
	if err != nil {
		return fmt.Errorf("add error detail: %w", err)
	}
	e.details = append(e.details, any)
	return nil
}

// Meta returns metadata attached to the error, delivered to the caller
// as response trailers.
func (e *Error) Meta() Metadata {
	if e.meta == nil {
		e.meta = NewMetadata()
	}
	return e.meta
}

// AsError reports whether err is or wraps an *Error.
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// wrap is a convenience for constructing an *Error without losing an
// existing one's code.
func wrap(code Code, err error) *Error {
	if err == nil {
		return nil
	}
	return NewError(code, err)
}

// statusToTrailer converts a Status into gRPC trailers. When headers
// haven't been flushed yet, the same trailer set doubles as the body of
// a trailers-only response (spec §4.9, Design Note on headers-then-fail).
func statusToTrailer(err *Error) http.Header {
	h := make(http.Header, 3)
	if err == nil {
		h.Set("Grpc-Status", "0")
		return h
	}
	h.Set("Grpc-Status", itoa(int(err.code)))
	mergeIntoHeader(h, err.meta)
	if err.message != "" {
		h.Set("Grpc-Message", percentEncode(err.message))
	}
	if len(err.details) > 0 {
		st := &statuspb.Status{
			Code:    int32(err.code),
			Message: err.message,
			Details: err.details,
		}
		if bin, marshalErr := proto.Marshal(st); marshalErr == nil {
			h.Set("Grpc-Status-Details-Bin", encodeBinaryHeader(bin))
		}
	}
	return h
}

// errStreamClosedWithoutStatus is the cause attached when a peer closes
// its side of the stream without ever sending a grpc-status trailer
// (spec §4.4: "if the stream ends without trailers, the status is
// synthesized as INTERNAL").
var errStreamClosedWithoutStatus = errors.New("peer closed without grpc-status")

// errorFromTrailer reconstructs an *Error from received gRPC trailers.
// It returns nil only when grpc-status is present and zero (true
// success); a completely absent grpc-status is a protocol violation,
// not success, and is synthesized as CodeInternal.
func errorFromTrailer(h http.Header) *Error {
	values, present := h["Grpc-Status"]
	if !present {
		return NewError(CodeInternal, errStreamClosedWithoutStatus)
	}
	raw := ""
	if len(values) > 0 {
		raw = values[0]
	}
	if raw == "0" {
		return nil
	}
	var code Code
	if err := code.UnmarshalText([]byte(raw)); err != nil {
		return &Error{code: CodeUnknown, message: fmt.Sprintf("invalid grpc-status %q", raw)}
	}
	message := percentDecode(h.Get("Grpc-Message"))
	e := &Error{code: code, message: message}
	if bin := h.Get("Grpc-Status-Details-Bin"); bin != "" {
		raw, err := decodeBinaryHeader(bin)
		if err == nil {
			var st statuspb.Status
			if proto.Unmarshal(raw, &st) == nil {
				e.details = st.GetDetails()
				if st.GetMessage() != "" {
					e.message = st.GetMessage()
				}
				e.code = Code(st.GetCode())
			}
		}
	}
	return e
}

// errorFromHTTPStatus builds an Error for a response that never reached
// the gRPC protocol layer (e.g. a proxy returning a plain HTTP error).
func errorFromHTTPStatus(status int) *Error {
	return &Error{
		code:    codeFromHTTP(status),
		message: fmt.Sprintf("HTTP status %d", status),
	}
}

// errorFromStreamClose maps the way a client's underlying HTTP/2 stream
// or connection ended into a Code, per spec §4.1: a CANCEL reset or a
// canceled context becomes CANCELED, a REFUSED_STREAM reset, a GOAWAY or
// any other connection failure becomes UNAVAILABLE, any other stream
// reset becomes INTERNAL, and an expired context deadline becomes
// DEADLINE_EXCEEDED. The transport error is kept as the cause.
func errorFromStreamClose(err error) *Error {
	if err == nil {
		return nil
	}
	var streamErr http2.StreamError
	if errors.As(err, &streamErr) {
		switch streamErr.Code {
		case http2.ErrCodeCancel:
			return NewError(CodeCanceled, err)
		case http2.ErrCodeRefusedStream:
			return NewError(CodeUnavailable, err)
		default:
			return NewError(CodeInternal, err)
		}
	}
	var goAway http2.GoAwayError
	if errors.As(err, &goAway) {
		return NewError(CodeUnavailable, err)
	}
	if errors.Is(err, context.Canceled) {
		return NewError(CodeCanceled, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(CodeDeadlineExceeded, err)
	}
	return NewError(CodeUnavailable, err)
}

// percentEncode escapes a grpc-message value per the gRPC spec: only '%'
// and non-printable bytes are escaped, so most ASCII text passes through
// untouched.
func percentEncode(msg string) string {
	needsEscape := false
	for i := 0; i < len(msg); i++ {
		if c := msg[i]; c < 0x20 || c > 0x7e || c == '%' {
			needsEscape = true
			break
		}
	}
	if !needsEscape {
		return msg
	}
	var out strings.Builder
	out.Grow(len(msg) + 8)
	for i := 0; i < len(msg); i++ {
		c := msg[i]
		if c < 0x20 || c > 0x7e || c == '%' {
			fmt.Fprintf(&out, "%%%02X", c)
			continue
		}
		out.WriteByte(c)
	}
	return out.String()
}

func percentDecode(msg string) string {
	if !strings.Contains(msg, "%") {
		return msg
	}
	var out strings.Builder
	out.Grow(len(msg))
	for i := 0; i < len(msg); i++ {
		if msg[i] == '%' && i+2 < len(msg) {
			hi, okHi := hexDigit(msg[i+1])
			lo, okLo := hexDigit(msg[i+2])
			if okHi && okLo {
				out.WriteByte(hi<<4 | lo)
				i += 2
				continue
			}
		}
		out.WriteByte(msg[i])
	}
	return out.String()
}

func hexDigit(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	default:
		return 0, false
	}
}

func itoa(n int) string {
	return fmt.Sprintf("%d", n)
}
