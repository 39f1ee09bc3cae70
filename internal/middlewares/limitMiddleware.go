package middlewares

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Transport-level flood protection per client IP. The business rate policy
// for OTP sends lives in the OTP service against the durable record; this
// only keeps one client from hammering the API.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

var ipVisitors = make(map[string]*visitor)
var mu sync.Mutex

func getLimiter(ip string) *rate.Limiter {
	mu.Lock()
	defer mu.Unlock()

	v, exists := ipVisitors[ip]
	if !exists {
		limiter := rate.NewLimiter(3, 5)
		v = &visitor{limiter, time.Now()}
		ipVisitors[ip] = v
	}

	v.lastSeen = time.Now()

	return v.limiter
}

func CleanupVisitors() {
	for {
		time.Sleep(time.Minute)

		mu.Lock()
		for ip, v := range ipVisitors {
			if time.Since(v.lastSeen) > 3*time.Minute {
				delete(ipVisitors, ip)
			}
		}
		mu.Unlock()
	}
}

func RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}

		if !getLimiter(ip).Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}
