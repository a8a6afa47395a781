package security

import (
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"

	"snowtrack/internal/log"
)

const (
	maxURLLength     = 2048
	maxForwardedHops = 5
)

// DetectionMetrics tracks security detection events
type DetectionMetrics struct {
	SuspiciousRequests int64
	InvalidIPAttempts  int64
}

var (
	attackPatterns = []string{
		"../", "..\\", ".env", ".git", ".ssh", "etc/passwd", "cmd.exe",
		"wp-admin", "phpmyadmin", "admin.php", "config.php",
		"<script", "javascript:", "eval(", "union select",
	}
	scannerAgents = []string{"sqlmap", "nmap", "nikto", "gobuster", "dirb", "masscan"}
	unusualMethods  = []string{"TRACE", "TRACK", "DEBUG", "CONNECT"}

	defaultTrustedProxies = []string{"127.0.0.0/8", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"}
)

// rule flags one kind of suspicious traffic.
type rule struct {
	reason string
	match  func(r *http.Request) bool
}

var rules = []rule{
	{"path_pattern", func(r *http.Request) bool { return containsAny(r.URL.Path, attackPatterns) }},
	{"query_pattern", func(r *http.Request) bool {
		q, err := url.QueryUnescape(r.URL.RawQuery)
		if err != nil {
			q = r.URL.RawQuery
		}
		return containsAny(q, attackPatterns)
	}},
	{"scanner_agent", func(r *http.Request) bool { return containsAny(r.UserAgent(), scannerAgents) }},
	{"unusual_method", func(r *http.Request) bool { return lo.Contains(unusualMethods, r.Method) }},
	{"long_url", func(r *http.Request) bool { return len(r.URL.String()) > maxURLLength }},
	{"forwarded_chain", func(r *http.Request) bool {
		return strings.Count(r.Header.Get("X-Forwarded-For"), ",") > maxForwardedHops
	}},
}

func containsAny(s string, needles []string) bool {
	s = strings.ToLower(s)
	return lo.SomeBy(needles, func(n string) bool { return strings.Contains(s, n) })
}

// Detector flags suspicious requests and resolves the client address behind
// trusted proxies.
type Detector struct {
	metrics        DetectionMetrics
	trustedProxies []*net.IPNet
}

// NewDetector trusts loopback and private networks as proxies.
func NewDetector() *Detector {
	d := &Detector{}
	for _, cidr := range defaultTrustedProxies {
		if err := d.AddTrustedProxy(cidr); err != nil {
			panic(err)
		}
	}
	return d
}

// Inspect returns the reason the request matches an attack signature, if any.
func (d *Detector) Inspect(r *http.Request) (string, bool) {
	for _, rl := range rules {
		if rl.match(r) {
			atomic.AddInt64(&d.metrics.SuspiciousRequests, 1)
			return rl.reason, true
		}
	}
	return "", false
}

// ExtractClientIP returns the remote address, or the forwarded client address
// when the connection comes from a trusted proxy.
func (d *Detector) ExtractClientIP(r *http.Request) string {
	directIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		directIP = r.RemoteAddr
	}

	ip := net.ParseIP(directIP)
	if ip == nil {
		atomic.AddInt64(&d.metrics.InvalidIPAttempts, 1)
		return directIP
	}
	if !d.isTrustedProxy(ip) {
		return directIP
	}

	// Leftmost X-Forwarded-For entry is the originating client
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if client := strings.TrimSpace(first); net.ParseIP(client) != nil {
			return client
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
		return xri
	}
	return directIP
}

func (d *Detector) isTrustedProxy(ip net.IP) bool {
	return lo.SomeBy(d.trustedProxies, func(n *net.IPNet) bool { return n.Contains(ip) })
}

// AddTrustedProxy trusts forwarded headers sent from the given network.
func (d *Detector) AddTrustedProxy(cidr string) error {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return errors.Wrapf(err, "invalid trusted proxy CIDR %s", cidr)
	}
	d.trustedProxies = append(d.trustedProxies, network)
	return nil
}

// GetMetrics returns a snapshot of the detection counters.
func (d *Detector) GetMetrics() DetectionMetrics {
	return DetectionMetrics{
		SuspiciousRequests: atomic.LoadInt64(&d.metrics.SuspiciousRequests),
		InvalidIPAttempts:  atomic.LoadInt64(&d.metrics.InvalidIPAttempts),
	}
}

// Middleware logs and counts suspicious requests without blocking them.
func (d *Detector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reason, ok := d.Inspect(r); ok {
			log.FromContext(r.Context()).WithComponent(log.ComponentSecurity).
				WarnContext(r.Context(), "Suspicious request detected",
				"reason", reason,
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path,
				log.FieldClientIP, d.ExtractClientIP(r),
				log.FieldUserAgent, r.UserAgent())
		}
		next.ServeHTTP(w, r)
	})
}
