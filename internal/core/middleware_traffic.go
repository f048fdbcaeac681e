package core

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"bannerly/internal/types"
)

// defaultRateLimitWindow and defaultRateLimitMax bound authenticated API
// traffic per user. Abuse-prone endpoints (signup) add stricter per-IP
// limits via EndpointRateLimit.
const (
	defaultRateLimitWindow = 1 * time.Minute
	defaultRateLimitMax    = 120
)

// RateLimitStore abstracts the backing store for rate limiting, allowing a
// shared store (Redis, Postgres) in multi-instance deployments and an
// in-memory store for single instances and tests.
type RateLimitStore interface {
	// IncrementAndCheck atomically increments the counter for the given key
	// and reports whether the limit is exceeded within the window.
	IncrementAndCheck(ctx context.Context, key string, limit int, window time.Duration) (RateLimitResult, error)
}

// RateLimitResult contains the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// RateLimit enforces per-user request limits using the configured store.
//
// Passes through when no store is configured, when the request is
// unauthenticated (auth middleware handles the 401), or when the store
// errors -- a store outage must not block all API traffic (fail open).
//
// On every checked request the middleware sets X-RateLimit-Limit,
// X-RateLimit-Remaining, and X-RateLimit-Reset; denied requests also get
// Retry-After.
func (s *Server) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.RateLimits == nil {
			next.ServeHTTP(w, r)
			return
		}

		actor, ok := types.GetActor(r.Context())
		if !ok || actor.ID == "" {
			next.ServeHTTP(w, r)
			return
		}

		result, err := s.RateLimits.IncrementAndCheck(
			r.Context(),
			"user:"+actor.ID,
			defaultRateLimitMax,
			defaultRateLimitWindow,
		)
		if err != nil {
			s.Logger.Error("rate limit store error",
				slog.String("actor_id", actor.ID),
				slog.String("error", err.Error()),
			)
			next.ServeHTTP(w, r)
			return
		}

		setRateLimitHeaders(w, defaultRateLimitMax, result)

		if !result.Allowed {
			s.Logger.Warn("rate limit exceeded",
				slog.String("actor_id", actor.ID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
			writeRateLimited(w, r, result)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// EndpointRateLimit returns middleware enforcing a per-IP limit for a single
// endpoint, independent of authentication. Used on signup to slow credential
// stuffing and mass account creation.
func (s *Server) EndpointRateLimit(name string, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s.RateLimits == nil {
				next.ServeHTTP(w, r)
				return
			}

			ip := clientIP(r)
			result, err := s.RateLimits.IncrementAndCheck(r.Context(), name+":"+ip, limit, window)
			if err != nil {
				s.Logger.Error("rate limit store error",
					slog.String("endpoint", name),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			setRateLimitHeaders(w, limit, result)

			if !result.Allowed {
				s.Logger.Warn("endpoint rate limit exceeded",
					slog.String("endpoint", name),
					slog.String("ip", ip),
				)
				writeRateLimited(w, r, result)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeRateLimited(w http.ResponseWriter, r *http.Request, result RateLimitResult) {
	retryAfter := int(time.Until(result.ResetAt).Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

	resp := APIErrorResponse{
		Error: ErrorDetail{
			Code:      string(types.ErrCodeRateLimit),
			Message:   "Rate limit exceeded. Please retry after the reset time.",
			RequestID: types.GetRequestID(r.Context()),
		},
	}
	JSON(w, r, http.StatusTooManyRequests, resp)
}

func setRateLimitHeaders(w http.ResponseWriter, limit int, result RateLimitResult) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

// clientIP extracts the originating client IP, preferring the first entry of
// X-Forwarded-For when present (the API sits behind a load balancer).
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.IndexByte(fwd, ','); idx >= 0 {
			fwd = fwd[:idx]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// MemoryRateLimitStore is a fixed-window in-process RateLimitStore for
// single-instance deployments and tests. Expired windows are swept lazily on
// access and by a background janitor.
type MemoryRateLimitStore struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
	done    chan struct{}
	once    sync.Once

	// now is injectable for tests.
	now func() time.Time
}

type memoryWindow struct {
	count   int
	resetAt time.Time
}

// NewMemoryRateLimitStore creates a MemoryRateLimitStore and starts its
// janitor goroutine. Call Close to stop the janitor.
func NewMemoryRateLimitStore() *MemoryRateLimitStore {
	s := &MemoryRateLimitStore{
		windows: make(map[string]*memoryWindow),
		done:    make(chan struct{}),
		now:     time.Now,
	}
	go s.janitor()
	return s
}

// IncrementAndCheck implements RateLimitStore with a fixed window counter.
func (s *MemoryRateLimitStore) IncrementAndCheck(_ context.Context, key string, limit int, window time.Duration) (RateLimitResult, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || now.After(w.resetAt) {
		w = &memoryWindow{resetAt: now.Add(window)}
		s.windows[key] = w
	}

	w.count++

	remaining := limit - w.count
	if remaining < 0 {
		remaining = 0
	}

	return RateLimitResult{
		Allowed:   w.count <= limit,
		Remaining: remaining,
		ResetAt:   w.resetAt,
	}, nil
}

// Close stops the janitor goroutine. Safe to call multiple times.
func (s *MemoryRateLimitStore) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *MemoryRateLimitStore) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			now := s.now()
			s.mu.Lock()
			for key, w := range s.windows {
				if now.After(w.resetAt) {
					delete(s.windows, key)
				}
			}
			s.mu.Unlock()
		}
	}
}

var _ RateLimitStore = (*MemoryRateLimitStore)(nil)
