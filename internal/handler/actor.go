package handler

import (
	"net"
	"net/http"
	"strings"

	"compass/internal/authz"
	"compass/internal/middleware"
	"compass/internal/model"
)

// actorFromRequest builds the caller from the verified token claims. The
// elevated flag comes from the role policy, never from the token itself.
func actorFromRequest(r *http.Request, policy authz.RolePolicy) (model.AuditActor, bool) {
	actor := model.AuditActor{IP: clientIP(r)}

	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		return actor, false
	}

	actor.UserID = claims.UserID
	actor.Username = claims.Username
	actor.Role = claims.Role

	return policy.Actor(actor), true
}

func clientIP(r *http.Request) string {
	xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
	if xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}

	xri := strings.TrimSpace(r.Header.Get("X-Real-IP"))
	if xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		return host
	}

	return strings.TrimSpace(r.RemoteAddr)
}
