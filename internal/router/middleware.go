package router

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"snipebot/pkg/logx"
)

type HandlerFunc func(ctx context.Context, req *Request) error

// Middleware wraps a handler. Chain applies them so the first listed wrapper
// is the outermost.
type Middleware func(next HandlerFunc) HandlerFunc

func Chain(h HandlerFunc, mw ...Middleware) HandlerFunc {
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}

// MWTimeout bounds a handler's execution. Zero or negative d applies a 30s
// default so no handler can hold a worker forever.
func MWTimeout(d time.Duration) Middleware {
	if d <= 0 {
		d = 30 * time.Second
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			tctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(tctx, req)
		}
	}
}

// MWPanicRecover converts a handler panic into an error and tells the user.
func MWPanicRecover(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("panic in handler",
						logx.String("cmd", req.Command), logx.String("rid", req.ReqID),
						logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
					err = fmt.Errorf("panic: %v", r)
					req.Reply(ctx, "internal error, this has been logged")
				}
			}()
			return next(ctx, req)
		}
	}
}

// MWRequestLog logs one line per invocation with the outcome and duration.
func MWRequestLog(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			err := next(ctx, req)
			fields := []logx.Field{
				logx.String("cmd", req.Command),
				logx.String("rid", req.ReqID),
				logx.String("from", req.FromID),
				logx.Duration("dur", time.Since(start)),
			}
			if err != nil {
				log.Warn("command failed", append(fields, logx.Err(err))...)
			} else {
				log.Debug("command handled", fields...)
			}
			return err
		}
	}
}
