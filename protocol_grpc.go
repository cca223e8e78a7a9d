package rpcgo

import (
	"net/http"
	"strings"
)

const (
	grpcContentTypePrefix = "application/grpc"
	userAgentValue        = "rpcgo/1.0 (+https://github.com/rpcgo/rpcgo)"
)

// writeUnimplementedTrailersOnly emits the trailers-only UNIMPLEMENTED
// response spec §4.8 Routing requires both for an unregistered path and
// for an HTTP method other than POST ("Existing HTTP method mismatch
// also maps to UNIMPLEMENTED"): HTTP 200, no body, grpc-status carried
// directly in the headers since no DATA frame will ever follow (spec §8
// scenario 4).
func writeUnimplementedTrailersOnly(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", grpcContentTypePrefix)
	w.Header().Set("Grpc-Status", itoa(int(CodeUnimplemented)))
	w.Header().Set("Grpc-Message", percentEncode(message))
	w.WriteHeader(http.StatusOK)
}

// contentTypeForCodec renders the Content-Type header for a codec name,
// matching "application/grpc+<codec-subtype>" from spec §6.1. The
// binary protobuf codec is special-cased to the bare "application/grpc",
// which first-party gRPC implementations treat as equivalent to
// "application/grpc+proto".
func contentTypeForCodec(name string) string {
	if name == "" || name == protoName {
		return grpcContentTypePrefix
	}
	return grpcContentTypePrefix + "+" + name
}

// codecNameFromContentType parses a request/response Content-Type into a
// codec name, or reports ok=false if it isn't a gRPC content type at
// all (spec §4.8 step 1: "must start with application/grpc; else
// respond 415").
func codecNameFromContentType(contentType string) (name string, ok bool) {
	if contentType == grpcContentTypePrefix {
		return protoName, true
	}
	if !strings.HasPrefix(contentType, grpcContentTypePrefix+"+") {
		return "", false
	}
	return strings.TrimPrefix(contentType, grpcContentTypePrefix+"+"), true
}

// splitCSV parses a comma/space separated header value, as used by both
// grpc-encoding (single value) and grpc-accept-encoding (a list).
func splitCSV(value string) []string {
	return strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ' '
	})
}
