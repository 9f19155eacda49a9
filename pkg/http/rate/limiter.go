package rate

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type Limiter interface {
	Wait(context.Context) error
}

type AdjustableLimiter interface {
	Limiter
	AdjustLimit(http.Header) error
}

// StravaHeaderKeys are the rate limit headers of the Strava API. Both carry a
// comma separated pair: the 15 minute window first, the daily window second.
var StravaHeaderKeys = HeaderKeys{
	LimitKey: "X-RateLimit-Limit",
	UsageKey: "X-RateLimit-Usage",
	Window:   15 * time.Minute,
}

type HeaderKeys struct {
	LimitKey string
	UsageKey string
	// Window is the period the first limit value applies to.
	Window time.Duration
}

type Limit struct {
	Limit     int
	Remaining int
	Window    time.Duration
}

// LimitFromHeader reads the short window limit and usage from header.
func LimitFromHeader(header http.Header, headerKeys HeaderKeys) (Limit, error) {
	var headerLimit Limit
	limit, err := firstValue(header.Get(headerKeys.LimitKey))
	if err != nil {
		return headerLimit, fmt.Errorf("error parsing limit: %w", err)
	}
	used, err := firstValue(header.Get(headerKeys.UsageKey))
	if err != nil {
		return headerLimit, fmt.Errorf("error parsing usage: %w", err)
	}
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	headerLimit = Limit{
		Limit:     limit,
		Remaining: remaining,
		Window:    headerKeys.Window,
	}
	return headerLimit, nil
}

func firstValue(v string) (int, error) {
	first, _, _ := strings.Cut(v, ",")
	return strconv.Atoi(strings.TrimSpace(first))
}

func NewFromHeader(h HeaderKeys) *HeaderLimiter {
	return &HeaderLimiter{
		headerKeys: h,
	}
}

// HeaderLimiter lets requests through unthrottled until the first response
// announces the API limits, then spreads the window budget evenly.
type HeaderLimiter struct {
	headerKeys HeaderKeys
	mutex      sync.Mutex
	limiter    *rate.Limiter
	last       Limit
}

func (r *HeaderLimiter) Wait(ctx context.Context) error {
	r.mutex.Lock()
	limiter := r.limiter
	r.mutex.Unlock()
	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}

func (r *HeaderLimiter) AdjustLimit(header http.Header) error {
	limit, err := LimitFromHeader(header, r.headerKeys)
	if err != nil {
		return fmt.Errorf("error adjusting limit by header: %w", err)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.last = limit
	every := rate.Every(limit.Window / time.Duration(max(limit.Limit, 1)))
	burst := max(limit.Remaining, 1)
	if r.limiter == nil {
		r.limiter = rate.NewLimiter(every, burst)
		return nil
	}
	r.limiter.SetLimit(every)
	r.limiter.SetBurst(burst)
	return nil
}

// Last returns the most recently announced limit.
func (r *HeaderLimiter) Last() Limit {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.last
}
