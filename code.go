package rpcgo

import (
	"fmt"
	"strconv"
)

// Code is one of gRPC's canonical status codes. There are no user-defined
// codes: only the values enumerated below are valid.
//
// See https://github.com/grpc/grpc/blob/master/doc/statuscodes.md for a
// description of each code and when to use it.
type Code uint32

const (
	CodeOK                 Code = 0
	CodeCanceled           Code = 1
	CodeUnknown            Code = 2
	CodeInvalidArgument    Code = 3
	CodeDeadlineExceeded   Code = 4
	CodeNotFound           Code = 5
	CodeAlreadyExists      Code = 6
	CodePermissionDenied   Code = 7
	CodeResourceExhausted  Code = 8
	CodeFailedPrecondition Code = 9
	CodeAborted            Code = 10
	CodeOutOfRange         Code = 11
	CodeUnimplemented      Code = 12
	CodeInternal           Code = 13
	CodeUnavailable        Code = 14
	CodeDataLoss           Code = 15
	CodeUnauthenticated    Code = 16

	minCode Code = CodeOK
	maxCode Code = CodeUnauthenticated
)

var stringToCode = map[string]Code{
	"OK":                  CodeOK,
	"CANCELLED":           CodeCanceled, // the gRPC spec uses the British spelling
	"UNKNOWN":             CodeUnknown,
	"INVALID_ARGUMENT":    CodeInvalidArgument,
	"DEADLINE_EXCEEDED":   CodeDeadlineExceeded,
	"NOT_FOUND":           CodeNotFound,
	"ALREADY_EXISTS":      CodeAlreadyExists,
	"PERMISSION_DENIED":   CodePermissionDenied,
	"RESOURCE_EXHAUSTED":  CodeResourceExhausted,
	"FAILED_PRECONDITION": CodeFailedPrecondition,
	"ABORTED":             CodeAborted,
	"OUT_OF_RANGE":        CodeOutOfRange,
	"UNIMPLEMENTED":       CodeUnimplemented,
	"INTERNAL":            CodeInternal,
	"UNAVAILABLE":         CodeUnavailable,
	"DATA_LOSS":           CodeDataLoss,
	"UNAUTHENTICATED":     CodeUnauthenticated,
}

// httpToCode maps HTTP status codes observed on the wire (before any
// gRPC trailers have been parsed) to gRPC codes, per
// https://github.com/grpc/grpc/blob/master/doc/http-grpc-status-mapping.md.
// This is not simply the inverse of Code.http().
var httpToCode = map[int]Code{
	400: CodeInternal,
	401: CodeUnauthenticated,
	403: CodePermissionDenied,
	404: CodeUnimplemented,
	415: CodeInternal,
	429: CodeUnavailable,
	502: CodeUnavailable,
	503: CodeUnavailable,
	504: CodeUnavailable,
	// every other HTTP status maps to CodeUnknown
}

// MarshalText implements encoding.TextMarshaler. Codes are marshaled as
// their decimal numeric representation, matching the wire form of
// grpc-status.
func (c Code) MarshalText() ([]byte, error) {
	if c < minCode || c > maxCode {
		return nil, fmt.Errorf("invalid code %d", c)
	}
	return []byte(strconv.Itoa(int(c))), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. It accepts both the
// numeric representation produced by MarshalText and the all-caps strings
// from the gRPC status taxonomy.
func (c *Code) UnmarshalText(b []byte) error {
	if n, ok := stringToCode[string(b)]; ok {
		*c = n
		return nil
	}
	n, err := strconv.ParseUint(string(b), 10, 32)
	if err != nil {
		return fmt.Errorf("invalid code %q", string(b))
	}
	code := Code(n)
	if code < minCode || code > maxCode {
		return fmt.Errorf("invalid code %d", n)
	}
	*c = code
	return nil
}

func (c Code) String() string {
	switch c {
	case CodeOK:
		return "ok"
	case CodeCanceled:
		return "canceled"
	case CodeUnknown:
		return "unknown"
	case CodeInvalidArgument:
		return "invalid_argument"
	case CodeDeadlineExceeded:
		return "deadline_exceeded"
	case CodeNotFound:
		return "not_found"
	case CodeAlreadyExists:
		return "already_exists"
	case CodePermissionDenied:
		return "permission_denied"
	case CodeResourceExhausted:
		return "resource_exhausted"
	case CodeFailedPrecondition:
		return "failed_precondition"
	case CodeAborted:
		return "aborted"
	case CodeOutOfRange:
		return "out_of_range"
	case CodeUnimplemented:
		return "unimplemented"
	case CodeInternal:
		return "internal"
	case CodeUnavailable:
		return "unavailable"
	case CodeDataLoss:
		return "data_loss"
	case CodeUnauthenticated:
		return "unauthenticated"
	}
	return fmt.Sprintf("code_%d", uint32(c))
}

// http returns the HTTP status that corresponds to c for a response
// that never makes it as far as trailers (for example, a malformed
// request that's rejected before any stream is established). It has no
// caller in this module: Handler writes such statuses (e.g. 415)
// directly.
func (c Code) http() int {
	// Per the gRPC-over-HTTP2 spec, a response carrying a grpc-status
	// trailer is always HTTP 200; codes only affect the HTTP status when
	// the runtime rejects the request before entering the gRPC protocol.
	switch c {
	case CodeUnauthenticated:
		return 401
	case CodePermissionDenied:
		return 403
	case CodeUnimplemented:
		return 404
	case CodeUnavailable:
		return 429
	default:
		return 200
	}
}

func codeFromHTTP(status int) Code {
	if status == 200 {
		return CodeOK
	}
	if c, ok := httpToCode[status]; ok {
		return c
	}
	return CodeUnknown
}
