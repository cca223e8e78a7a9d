package rpcgo

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// grpc-timeout uses a unit suffix chosen so the digits always fit in 8
// decimal characters (spec §4.7 step 3, spec §6.1).
const (
	timeoutUnitHour        = 'H'
	timeoutUnitMinute      = 'M'
	timeoutUnitSecond      = 'S'
	timeoutUnitMillisecond = 'm'
	timeoutUnitMicrosecond = 'u'
	timeoutUnitNanosecond  = 'n'

	maxTimeoutDigits = 8
	maxTimeoutValue  = 99999999
)

// encodeTimeout renders d as a grpc-timeout header value. It picks the
// finest unit whose value still fits in 8 digits, trying nanoseconds
// first, to match what first-party gRPC implementations produce; any
// remainder below that unit is truncated.
func encodeTimeout(d time.Duration) (string, error) {
	if d <= 0 {
		return "0n", nil
	}
	units := []struct {
		suffix byte
		size   time.Duration
	}{
		{timeoutUnitNanosecond, time.Nanosecond},
		{timeoutUnitMicrosecond, time.Microsecond},
		{timeoutUnitMillisecond, time.Millisecond},
		{timeoutUnitSecond, time.Second},
		{timeoutUnitMinute, time.Minute},
		{timeoutUnitHour, time.Hour},
	}
	for _, u := range units {
		value := int64(d / u.size)
		if value <= maxTimeoutValue {
			return fmt.Sprintf("%d%c", value, u.suffix), nil
		}
	}
	return "", fmt.Errorf("duration %v too large to encode as grpc-timeout", d)
}

// decodeTimeout parses a grpc-timeout header value into a Duration. Per
// spec §4.9's failure table, a syntactically invalid header is a
// protocol error (CodeInternal); an empty header means "no deadline" and
// is the caller's responsibility to detect separately.
func decodeTimeout(value string) (time.Duration, error) {
	if value == "" {
		return 0, fmt.Errorf("empty grpc-timeout")
	}
	if len(value) < 2 || len(value) > maxTimeoutDigits+1 {
		return 0, fmt.Errorf("malformed grpc-timeout %q", value)
	}
	unit := value[len(value)-1]
	digits := value[:len(value)-1]
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("malformed grpc-timeout %q", value)
	}
	switch unit {
	case timeoutUnitHour:
		return time.Duration(n) * time.Hour, nil
	case timeoutUnitMinute:
		return time.Duration(n) * time.Minute, nil
	case timeoutUnitSecond:
		return time.Duration(n) * time.Second, nil
	case timeoutUnitMillisecond:
		return time.Duration(n) * time.Millisecond, nil
	case timeoutUnitMicrosecond:
		return time.Duration(n) * time.Microsecond, nil
	case timeoutUnitNanosecond:
		return time.Duration(n) * time.Nanosecond, nil
	default:
		return 0, fmt.Errorf("malformed grpc-timeout unit %q", string(unit))
	}
}

// contextWithTimeoutHeader applies an incoming grpc-timeout header to
// ctx, returning a derived context, its cancel func (always non-nil so
// callers can unconditionally defer it), and any parse error (spec
// §4.8 step 3).
func contextWithTimeoutHeader(ctx context.Context, header string) (context.Context, context.CancelFunc, error) {
	if header == "" {
		return ctx, func() {}, nil
	}
	d, err := decodeTimeout(header)
	if err != nil {
		return ctx, func() {}, err
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	ctx = context.WithValue(ctx, deadlineContextKey{}, time.Now().Add(d))
	return ctx, cancel, nil
}
