package utils

import (
	"time"

	"github.com/juju/ratelimit"
	"go.uber.org/zap"
)

// LimitedLogger drops messages once its token bucket is empty. The frame
// path logs through it so a misbehaving camera cannot flood the log at
// frame rate. It is not safe for concurrent use.
type LimitedLogger struct {
	l       *zap.SugaredLogger
	bucket  *ratelimit.Bucket
	dropped int64
}

// NewLimitedLogger allows burst messages at once, refilled at one message
// per interval.
func NewLimitedLogger(l *zap.SugaredLogger, interval time.Duration, burst int64) *LimitedLogger {
	return &LimitedLogger{
		l:      l,
		bucket: ratelimit.NewBucket(interval, burst),
	}
}

func (ll *LimitedLogger) allow() (int64, bool) {
	if ll.bucket.TakeAvailable(1) == 0 {
		ll.dropped++
		return 0, false
	}
	d := ll.dropped
	ll.dropped = 0
	return d, true
}

func (ll *LimitedLogger) Warnf(template string, args ...interface{}) {
	d, ok := ll.allow()
	if !ok {
		return
	}
	if d > 0 {
		ll.l.Warnf("(%d similar messages suppressed)", d)
	}
	ll.l.Warnf(template, args...)
}

func (ll *LimitedLogger) Errorf(template string, args ...interface{}) {
	d, ok := ll.allow()
	if !ok {
		return
	}
	if d > 0 {
		ll.l.Warnf("(%d similar messages suppressed)", d)
	}
	ll.l.Errorf(template, args...)
}
