// Package grpclog provides a structured-logging Interceptor built on
// go.uber.org/zap (SPEC_FULL.md §2.1). It never touches metrics or
// tracing -- a full observability stack is out of scope.
package grpclog

import (
	"context"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rpcgo/rpcgo"
)

// Interceptor logs one entry per unary call (client or handler side)
// and per handler-side streaming call, including the procedure, stream
// type, peer, elapsed time, and resulting status code. Client-side
// streaming calls are passed through by WrapStreamingClient and are not
// logged. The log level reflects the severity of the
// outcome rather than always logging at the same level, so a
// well-behaved client canceling a call doesn't drown out genuine
// server failures.
type Interceptor struct {
	logger *zap.Logger
}

// New builds a logging Interceptor around logger.
func New(logger *zap.Logger) *Interceptor {
	return &Interceptor{logger: logger}
}

func (i *Interceptor) WrapUnary(next rpcgo.UnaryFunc) rpcgo.UnaryFunc {
	return func(ctx context.Context, req rpcgo.AnyRequest) (rpcgo.AnyResponse, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		i.log("unary call", req.Spec(), req.Peer(), start, err)
		return resp, err
	}
}

func (i *Interceptor) WrapStreamingClient(next rpcgo.StreamingClientFunc) rpcgo.StreamingClientFunc {
	return next
}

func (i *Interceptor) WrapStreamingHandler(next rpcgo.StreamingHandlerFunc) rpcgo.StreamingHandlerFunc {
	return func(ctx context.Context, conn rpcgo.StreamingHandlerConn) error {
		start := time.Now()
		err := next(ctx, conn)
		i.log("stream call", conn.Spec(), conn.Peer(), start, err)
		return err
	}
}

func (i *Interceptor) log(msg string, spec rpcgo.Spec, peer rpcgo.Peer, start time.Time, err error) {
	fields := []zapcore.Field{
		zap.String("procedure", spec.Procedure),
		zap.String("stream_type", spec.StreamType.String()),
		zap.String("peer", peer.Addr),
		zap.Duration("duration", time.Since(start)),
	}
	code := rpcgo.CodeOK
	if err != nil {
		code = rpcgo.CodeUnknown
		if e, ok := rpcgo.AsError(err); ok {
			code = e.Code()
		}
		fields = append(fields, zap.Error(err))
	}
	fields = append(fields, zap.String("code", code.String()))

	switch logLevelForCode(code) {
	case zapcore.DebugLevel:
		i.logger.Debug(msg, fields...)
	case zapcore.InfoLevel:
		i.logger.Info(msg, fields...)
	default:
		i.logger.Error(msg, fields...)
	}
}

// logLevelForCode buckets a status code by who's at fault: OK and a
// client-initiated Canceled are routine (debug); the remaining 4xx-like
// codes are the caller's doing (info); everything else reflects a
// server-side failure (error).
func logLevelForCode(code rpcgo.Code) zapcore.Level {
	switch code {
	case rpcgo.CodeOK, rpcgo.CodeCanceled:
		return zapcore.DebugLevel
	case rpcgo.CodeInvalidArgument,
		rpcgo.CodeNotFound,
		rpcgo.CodeAlreadyExists,
		rpcgo.CodePermissionDenied,
		rpcgo.CodeFailedPrecondition,
		rpcgo.CodeAborted,
		rpcgo.CodeOutOfRange,
		rpcgo.CodeUnauthenticated:
		return zapcore.InfoLevel
	default:
		return zapcore.ErrorLevel
	}
}
