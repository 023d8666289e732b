package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/andrewanujbusiness/messenger/internal/metrics"
)

// RateLimit caps requests per key over a sliding window.
type RateLimit struct {
	Requests int
	Window   time.Duration
	KeyFunc  func(r *http.Request) string
}

// route binds a limit to requests whose method matches and whose path
// (without the /api prefix) starts with prefix.
type route struct {
	method string
	prefix string
	limit  RateLimit
}

// Routes are matched in order; the first hit wins.
var defaultRoutes = []route{
	{http.MethodPost, "/login", RateLimit{10, time.Minute, ipKey}},
	{http.MethodPost, "/messages", RateLimit{60, time.Minute, tokenOrIPKey}},
	{http.MethodPost, "/tone-preference", RateLimit{30, time.Minute, tokenOrIPKey}},
	{http.MethodGet, "/tone-preference/", RateLimit{120, time.Minute, tokenOrIPKey}},
	{http.MethodGet, "/conversations/", RateLimit{120, time.Minute, tokenOrIPKey}},
	{http.MethodGet, "/users", RateLimit{120, time.Minute, tokenOrIPKey}},
	{http.MethodGet, "/ws", RateLimit{30, time.Minute, ipKey}},
}

// RateLimiterConfig holds configuration for the rate limiter.
type RateLimiterConfig struct {
	Whitelist        []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled bool     // block an IP for a day after repeated violations
}

const (
	violationThreshold = 10
	violationWindow    = time.Hour
	autoBlockDuration  = 24 * time.Hour
)

// RateLimiter limits requests per client using sorted sets in Redis.
type RateLimiter struct {
	client    *redis.Client
	routes    []route
	blocker   *IPBlocker
	exempt    ipSet
	autoBlock bool
	logger    zerolog.Logger
}

// NewRateLimiter creates a rate limiter for the chat routes.
func NewRateLimiter(client *redis.Client, logger zerolog.Logger, cfg RateLimiterConfig) *RateLimiter {
	exempt := parseIPSet(cfg.Whitelist, logger)
	if len(cfg.Whitelist) > 0 {
		logger.Info().
			Int("ips", len(exempt.ips)).
			Int("cidrs", len(exempt.nets)).
			Msg("rate limit whitelist configured")
	}

	return &RateLimiter{
		client:    client,
		routes:    defaultRoutes,
		blocker:   NewIPBlocker(client),
		exempt:    exempt,
		autoBlock: cfg.AutoBlockEnabled,
		logger:    logger,
	}
}

// ipSet matches addresses against exact IPs and CIDR ranges.
type ipSet struct {
	ips  map[string]struct{}
	nets []*net.IPNet
}

func parseIPSet(entries []string, logger zerolog.Logger) ipSet {
	set := ipSet{ips: make(map[string]struct{})}
	for _, entry := range entries {
		if !strings.Contains(entry, "/") {
			set.ips[entry] = struct{}{}
			continue
		}
		_, ipNet, err := net.ParseCIDR(entry)
		if err != nil {
			logger.Warn().Str("entry", entry).Err(err).Msg("invalid CIDR in whitelist")
			continue
		}
		set.nets = append(set.nets, ipNet)
	}
	return set
}

func (s ipSet) contains(addr string) bool {
	if _, ok := s.ips[addr]; ok {
		return true
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, n := range s.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func ipKey(r *http.Request) string {
	return "ratelimit:ip:" + RealIP(r)
}

// tokenOrIPKey keys on the bearer token when one is presented. The limiter
// runs before token verification, so only a hash of the token is used.
func tokenOrIPKey(r *http.Request) string {
	if token, ok := BearerToken(r); ok {
		return "ratelimit:token:" + sha256Hex([]byte(token))[:32]
	}
	return ipKey(r)
}

// RealIP extracts the client IP from proxy headers or the connection.
func RealIP(r *http.Request) string {
	if ip := r.Header.Get("Fly-Client-IP"); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// decision is the outcome of one limit check.
type decision struct {
	allowed   bool
	remaining int
	resetAt   time.Time
}

// Allow records a hit for key and reports whether it fits in the window.
// Redis errors fail open.
func (rl *RateLimiter) Allow(ctx context.Context, key string, limit RateLimit) decision {
	now := time.Now()

	pipe := rl.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(now.Add(-limit.Window).UnixMilli(), 10))
	count := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: ulid.Make().String()})
	pipe.PExpire(ctx, key, limit.Window)
	oldest := pipe.ZRangeWithScores(ctx, key, 0, 0)

	if _, err := pipe.Exec(ctx); err != nil {
		rl.logger.Warn().Err(err).Str("key", key).Msg("rate limit check failed")
		return decision{allowed: true, remaining: limit.Requests, resetAt: now.Add(limit.Window)}
	}

	seen := int(count.Val())
	resetAt := now.Add(limit.Window)
	if first := oldest.Val(); len(first) > 0 {
		resetAt = time.UnixMilli(int64(first[0].Score)).Add(limit.Window)
	}

	return decision{
		allowed:   seen < limit.Requests,
		remaining: max(limit.Requests-seen-1, 0),
		resetAt:   resetAt,
	}
}

// Middleware returns the rate limiting middleware.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := RealIP(r)
		if rl.exempt.contains(ip) {
			next.ServeHTTP(w, r)
			return
		}

		if rl.blocker.IsBlocked(r.Context(), ip) {
			rl.logger.Warn().
				Str("type", "security").
				Str("event", "blocked_request").
				Str("ip", ip).
				Str("endpoint", r.URL.Path).
				Msg("blocked IP attempted request")
			metrics.BlockedRequests.WithLabelValues("ip_blocked").Inc()
			jsonError(w, http.StatusForbidden, "temporarily blocked")
			return
		}

		limit, ok := rl.match(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		key := limit.KeyFunc(r)
		d := rl.Allow(r.Context(), key, limit)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit.Requests))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.resetAt.Unix(), 10))

		if !d.allowed {
			retry := int(time.Until(d.resetAt).Seconds()) + 1
			w.Header().Set("Retry-After", strconv.Itoa(retry))

			rl.recordViolation(r.Context(), ip)
			metrics.RateLimitHits.WithLabelValues(normalizePath(r.URL.Path)).Inc()

			rl.logger.Warn().
				Str("type", "security").
				Str("event", "rate_limit_exceeded").
				Str("ip", ip).
				Str("endpoint", r.URL.Path).
				Str("key", key).
				Msg("rate limit exceeded")

			jsonError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) match(r *http.Request) (RateLimit, bool) {
	path := trimAPIPrefix(r.URL.Path)
	for _, rt := range rl.routes {
		if r.Method == rt.method && strings.HasPrefix(path, rt.prefix) {
			return rt.limit, true
		}
	}
	return RateLimit{}, false
}

// recordViolation counts a limit hit against ip and blocks repeat offenders.
func (rl *RateLimiter) recordViolation(ctx context.Context, ip string) {
	if !rl.autoBlock {
		return
	}

	key := "violations:ip:" + ip
	count, err := rl.client.Incr(ctx, key).Result()
	if err != nil {
		return
	}
	if count == 1 {
		rl.client.Expire(ctx, key, violationWindow)
	}

	if count >= violationThreshold {
		rl.blocker.Block(ctx, ip, autoBlockDuration, "repeated rate limit violations")
		metrics.BlockedRequests.WithLabelValues("auto_block").Inc()
		rl.logger.Warn().
			Str("type", "security").
			Str("event", "ip_auto_blocked").
			Str("ip", ip).
			Int64("violations", count).
			Msg("IP auto-blocked for repeated violations")
	}
}

// IPBlocker manages temporary IP blocks.
type IPBlocker struct {
	client *redis.Client
}

// NewIPBlocker creates a new IP blocker.
func NewIPBlocker(client *redis.Client) *IPBlocker {
	return &IPBlocker{client: client}
}

func blockKey(ip string) string {
	return "blocked:ip:" + ip
}

// IsBlocked reports whether ip is currently blocked.
func (b *IPBlocker) IsBlocked(ctx context.Context, ip string) bool {
	n, _ := b.client.Exists(ctx, blockKey(ip)).Result()
	return n > 0
}

// Block blocks ip for duration.
func (b *IPBlocker) Block(ctx context.Context, ip string, duration time.Duration, reason string) {
	b.client.Set(ctx, blockKey(ip), reason, duration)
}

// Unblock removes a block.
func (b *IPBlocker) Unblock(ctx context.Context, ip string) {
	b.client.Del(ctx, blockKey(ip))
}
