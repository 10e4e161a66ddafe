package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"gestoria/pkg/response"

	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"
)

// Tier describes a fixed quota of requests per window for one client IP.
type Tier struct {
	Name     string
	Requests int
	Window   time.Duration
	Message  string
}

var (
	LoginTier    = Tier{Name: "login", Requests: 5, Window: 15 * time.Minute, Message: "Too many login attempts, try again later"}
	RegisterTier = Tier{Name: "register", Requests: 3, Window: time.Hour, Message: "Too many accounts created from this IP, try again later"}
	GeneralTier  = Tier{Name: "general", Requests: 100, Window: 15 * time.Minute, Message: "Too many requests, try again later"}
	StrictTier   = Tier{Name: "strict", Requests: 10, Window: time.Hour, Message: "Too many sensitive operations, try again later"}
)

// window counts the hits of one IP since the window started.
type window struct {
	start time.Time
	count int
}

// RateLimiter enforces a fixed-window quota per IP for a single tier. The
// window opens on the first hit and is not extended by later ones.
type RateLimiter struct {
	tier     Tier
	mu       sync.Mutex
	visitors *gocache.Cache
	now      func() time.Time
}

// NewRateLimiter creates a limiter whose expired windows are evicted in the
// background.
func NewRateLimiter(tier Tier) *RateLimiter {
	return &RateLimiter{
		tier:     tier,
		visitors: gocache.New(tier.Window, tier.Window),
		now:      time.Now,
	}
}

// Stop drops every counter. Safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.visitors.Flush()
}

// Allow records a hit for ip and reports whether it is within the quota.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	var w *window
	if v, found := rl.visitors.Get(ip); found {
		w = v.(*window)
	}
	if w == nil || !now.Before(w.start.Add(rl.tier.Window)) {
		w = &window{start: now}
		rl.visitors.Set(ip, w, rl.tier.Window)
	}
	if w.count >= rl.tier.Requests {
		return false
	}
	w.count++
	return true
}

// RetryAfter is the number of seconds a rejected client is told to wait.
func (rl *RateLimiter) RetryAfter() int {
	return int(rl.tier.Window.Seconds())
}

// Handler rejects requests over quota with 429 and a Retry-After header.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.Allow(c.ClientIP()) {
			c.Next()
			return
		}
		retry := rl.RetryAfter()
		c.Header("Retry-After", strconv.Itoa(retry))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, response.RateLimited{Error: rl.tier.Message, RetryAfter: retry})
	}
}

// Limiters groups the tiers used by the router.
type Limiters struct {
	Login    *RateLimiter
	Register *RateLimiter
	General  *RateLimiter
	Strict   *RateLimiter
}

func NewLimiters() *Limiters {
	return &Limiters{
		Login:    NewRateLimiter(LoginTier),
		Register: NewRateLimiter(RegisterTier),
		General:  NewRateLimiter(GeneralTier),
		Strict:   NewRateLimiter(StrictTier),
	}
}

func (l *Limiters) Stop() {
	for _, rl := range []*RateLimiter{l.Login, l.Register, l.General, l.Strict} {
		rl.Stop()
	}
}
