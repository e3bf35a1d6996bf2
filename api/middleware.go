package api

import (
	"encoding/base64"
	"fileserver/config"
	"fileserver/db"
	"fileserver/models"
	"fileserver/utils"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const contextUserKey = "user"

// currentUser retrieves the authenticated user placed in the request context
// by AuthMiddleware. Handlers behind the middleware may assume it is set.
func currentUser(c *gin.Context) models.User {
	user, _ := c.MustGet(contextUserKey).(models.User)
	return user
}

// HeadersMiddleware attaches the Server header to every response and, when a
// CORS origin is configured, the Access-Control-Allow-Origin header.
func HeadersMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Server", cfg.ServerName)
		if cfg.CorsOrigin != "" {
			c.Header("Access-Control-Allow-Origin", cfg.CorsOrigin)
			c.Header("Access-Control-Allow-Headers", "Authorization")
		}
		c.Next()
	}
}

// RequestIDMiddleware tags every request with a generated id, echoed in the
// X-Request-Id header and available to log lines downstream.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := utils.GenerateDashlessUUID()
		c.Set("request_id", requestID)
		c.Header("X-Request-Id", requestID)
		c.Next()
	}
}

// rateEntry pairs a per-client limiter with its last activity time so idle
// entries can be evicted.
type rateEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter enforces a per-client-IP request budget and the static IP
// blacklist. A limit of 0 disables rate limiting entirely; the blacklist is
// always enforced. Idle limiter entries vanish after cfg.RateVanishTime.
type RateLimiter struct {
	mu        sync.Mutex
	clients   map[string]*rateEntry
	limit     rate.Limit
	burst     int
	vanish    time.Duration
	blacklist map[string]struct{}
}

func NewRateLimiter(cfg *config.Config) *RateLimiter {
	blacklist := make(map[string]struct{}, len(cfg.Blacklist))
	for _, ip := range cfg.Blacklist {
		blacklist[ip] = struct{}{}
	}
	rl := &RateLimiter{
		clients:   make(map[string]*rateEntry),
		burst:     cfg.RateLimit,
		vanish:    cfg.RateVanishTime,
		blacklist: blacklist,
	}
	if cfg.RateLimit > 0 && cfg.RateVanishTime > 0 {
		// RateLimit requests per vanish interval, refilled evenly. The
		// cleanup ticker requires a positive interval, so both the limiter
		// and its eviction loop stay off when the interval is not.
		rl.limit = rate.Limit(float64(cfg.RateLimit) / cfg.RateVanishTime.Seconds())
		go rl.cleanupLoop()
	}
	return rl
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.vanish)
	defer ticker.Stop()
	for range ticker.C {
		rl.mu.Lock()
		for ip, entry := range rl.clients {
			if time.Since(entry.lastSeen) > rl.vanish {
				delete(rl.clients, ip)
			}
		}
		rl.mu.Unlock()
	}
}

func (rl *RateLimiter) allow(ip string) bool {
	if rl.limit <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	entry, ok := rl.clients[ip]
	if !ok {
		entry = &rateEntry{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[ip] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter.Allow()
}

// Middleware returns the gin handler enforcing the blacklist and the per-IP
// budget.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if _, blocked := rl.blacklist[ip]; blocked {
			log.Printf("WARN: Rejected request from blacklisted IP %s", ip)
			respondError(c, utils.Forbidden("Forbidden"))
			return
		}
		if !rl.allow(ip) {
			respondError(c, utils.NewHTTPError(http.StatusTooManyRequests, "Too Many Requests"))
			return
		}
		c.Next()
	}
}

// AuthMiddleware authenticates every version-scoped request. Two schemes are
// accepted: Basic (id and password checked against the credential store) and
// Bearer (a token previously issued by the token endpoint). On success the
// resolved user is stored in the request context.
func AuthMiddleware(cfg *config.Config, users *db.UserStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			respondError(c, utils.Unauthorized("Unauthorized"))
			return
		}
		parts := strings.Split(header, " ")
		if len(parts) != 2 {
			respondError(c, utils.BadRequest("Invalid Authorization"))
			return
		}

		var user models.User
		var err error
		switch strings.ToLower(parts[0]) {
		case "basic":
			user, err = authenticateBasic(users, parts[1])
		case "bearer":
			user, err = authenticateBearer(cfg, users, parts[1])
		default:
			err = utils.BadRequest("Invalid Authorization Method")
		}
		if err != nil {
			respondError(c, err)
			return
		}

		c.Set(contextUserKey, user)
		c.Next()
	}
}

func authenticateBasic(users *db.UserStore, encoded string) (models.User, error) {
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return models.User{}, utils.BadRequest("Invalid Authorization")
	}
	id, password, found := strings.Cut(string(decoded), ":")
	if !found {
		return models.User{}, utils.BadRequest("Invalid Authorization")
	}
	return users.Authenticate(id, password)
}

func authenticateBearer(cfg *config.Config, users *db.UserStore, token string) (models.User, error) {
	claims, err := utils.ValidateJWT(token, cfg.JwtSecret)
	if err != nil {
		return models.User{}, utils.Unauthorized("Invalid Token")
	}
	// The token only proves who the caller was at issue time; the account
	// must still exist and be enabled now.
	target, err := users.GetUser(claims.UserID)
	if err != nil {
		return models.User{}, utils.Unauthorized("Invalid Token")
	}
	if !target.Enabled {
		return models.User{}, utils.Unauthorized("User Disabled")
	}
	return target, nil
}
