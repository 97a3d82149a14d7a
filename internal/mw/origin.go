package mw

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
)

// OriginPolicy decides which browser origins may use the API and open
// WebSocket connections. "*" allows every origin; an empty list allows only
// requests whose Origin matches the Host they were sent to.
type OriginPolicy struct {
	allowAll bool
	allowed  map[string]struct{}
}

func NewOriginPolicy(origins []string) *OriginPolicy {
	p := &OriginPolicy{allowed: make(map[string]struct{})}
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if o == "*" {
			p.allowAll = true
			continue
		}
		n, ok := normalizeOrigin(o)
		if !ok {
			log.Warn().Str("origin", o).Msg("ignoring invalid origin in configuration")
			continue
		}
		p.allowed[n] = struct{}{}
	}
	return p
}

func normalizeOrigin(origin string) (string, bool) {
	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host), true
}

// Allowed reports whether origin may be served for a request to host.
func (p *OriginPolicy) Allowed(origin, host string) bool {
	n, ok := normalizeOrigin(origin)
	if !ok {
		return false
	}
	if p.allowAll {
		return true
	}
	if _, ok := p.allowed[n]; ok {
		return true
	}
	u, _ := url.Parse(n)
	return len(p.allowed) == 0 && strings.EqualFold(u.Host, host)
}

// CheckOrigin is a websocket.Upgrader CheckOrigin function. Requests without an
// Origin header come from non-browser clients and are accepted.
func (p *OriginPolicy) CheckOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if p.Allowed(origin, r.Host) {
		return true
	}
	log.Warn().Str("origin", origin).Msg("blocked websocket connection from disallowed origin")
	return false
}
