package httpserver

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

const (
	liveConnectRate  = 5.0 // new live connections per second per IP
	liveConnectBurst = 20

	connectLimiterIdle       = 10 * time.Minute
	connectLimiterSweepEvery = 5 * time.Minute
)

type LimitReason string

const (
	LimitReasonGlobal LimitReason = "global_limit"
	LimitReasonPerIP  LimitReason = "per_ip_limit"
	LimitReasonRate   LimitReason = "rate_limit"
)

// ConnectionLimits gates live channel upgrades by total count, count per
// IP and connect rate per IP. Every successful Acquire needs one Release.
type ConnectionLimits struct {
	clock clockwork.Clock

	current   atomic.Int64
	globalMax int64

	mu       sync.Mutex
	perIP    map[string]int
	perIPMax int

	rateMu    sync.Mutex
	limiters  map[string]*connectLimiter
	rate      rate.Limit
	burst     int
	nextSweep time.Time
}

type connectLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewConnectionLimits(clock clockwork.Clock, globalMax int64, perIPMax int, connectsPerSecond float64, burst int) *ConnectionLimits {
	return &ConnectionLimits{
		clock:     clock,
		globalMax: globalMax,
		perIP:     make(map[string]int),
		perIPMax:  perIPMax,
		limiters:  make(map[string]*connectLimiter),
		rate:      rate.Limit(connectsPerSecond),
		burst:     burst,
		nextSweep: clock.Now().Add(connectLimiterSweepEvery),
	}
}

// Acquire reserves a slot for ip, or reports which limit refused it.
func (l *ConnectionLimits) Acquire(ip string) (bool, LimitReason) {
	if !l.allowConnect(ip) {
		return false, LimitReasonRate
	}

	if !l.acquireGlobal() {
		return false, LimitReasonGlobal
	}

	l.mu.Lock()
	if l.perIP[ip] >= l.perIPMax {
		l.mu.Unlock()
		l.current.Add(-1)
		return false, LimitReasonPerIP
	}
	l.perIP[ip]++
	l.mu.Unlock()

	return true, ""
}

func (l *ConnectionLimits) Release(ip string) {
	l.mu.Lock()
	if count := l.perIP[ip]; count > 1 {
		l.perIP[ip] = count - 1
	} else {
		delete(l.perIP, ip)
	}
	l.mu.Unlock()

	l.current.Add(-1)
}

// Current returns the number of held slots.
func (l *ConnectionLimits) Current() int64 {
	return l.current.Load()
}

// CountForIP returns the number of slots held by ip.
func (l *ConnectionLimits) CountForIP(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.perIP[ip]
}

func (l *ConnectionLimits) acquireGlobal() bool {
	for {
		current := l.current.Load()
		if current >= l.globalMax {
			return false
		}
		if l.current.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

func (l *ConnectionLimits) allowConnect(ip string) bool {
	l.rateMu.Lock()
	defer l.rateMu.Unlock()

	now := l.clock.Now()
	if now.After(l.nextSweep) {
		cutoff := now.Add(-connectLimiterIdle)
		for key, entry := range l.limiters {
			if entry.lastSeen.Before(cutoff) {
				delete(l.limiters, key)
			}
		}
		l.nextSweep = now.Add(connectLimiterSweepEvery)
	}

	entry, ok := l.limiters[ip]
	if !ok {
		entry = &connectLimiter{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}
