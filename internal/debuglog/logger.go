// Package debuglog is a secondary, opt-in trace channel for the relay
// transports' broadcast path, where per-message logging would
// otherwise flood the leveled glog output on every publish.
package debuglog

import (
	"fmt"
	"os"
	"sync"
	"time"
)

const queueSize = 2048

type logger struct {
	once sync.Once
	ch   chan string
}

var (
	global  logger
	rlMu    sync.Mutex
	rlLast  = make(map[string]time.Time)
	rlSweep = time.Now()
)

func enabled() bool {
	return os.Getenv("PAIRING_DEBUG") == "1"
}

func (l *logger) start() {
	l.once.Do(func() {
		l.ch = make(chan string, queueSize)
		go func() {
			for msg := range l.ch {
				_, _ = os.Stderr.WriteString(msg)
			}
		}()
	})
}

// Debugf logs a trace line when PAIRING_DEBUG=1 is set, otherwise it is
// a no-op. Delivery is best-effort: a saturated queue drops the line
// rather than block the caller's goroutine.
func Debugf(format string, args ...any) {
	if !enabled() {
		return
	}
	msg := fmt.Sprintf(format+"\n", args...)
	global.start()
	select {
	case global.ch <- msg:
	default:
	}
}

// RateLimitedf is Debugf with a per-key minimum interval, for tracing
// that would otherwise repeat on every message of a busy topic.
func RateLimitedf(key string, interval time.Duration, format string, args ...any) {
	if !enabled() || key == "" {
		return
	}
	now := time.Now()
	rlMu.Lock()
	last := rlLast[key]
	if now.Sub(last) < interval {
		rlMu.Unlock()
		return
	}
	rlLast[key] = now
	if now.Sub(rlSweep) > 2*interval {
		for k, ts := range rlLast {
			if now.Sub(ts) > 4*interval {
				delete(rlLast, k)
			}
		}
		rlSweep = now
	}
	rlMu.Unlock()
	Debugf(format, args...)
}
