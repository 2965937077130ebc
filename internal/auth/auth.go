// Package auth resolves per-request identity and plan capabilities.
//
// Identity itself is owned by the external identity provider; this service
// runs behind an authenticating proxy that verifies the session and
// forwards the resolved user id and plan grants as request headers.
package auth

import (
	"context"
	"net/http"
	"regexp"
	"strings"
)

const (
	UserIDHeaderName   = "X-User-ID"
	PlanHeaderName     = "X-User-Plan"
	FeaturesHeaderName = "X-User-Features"
)

// Plan and feature grants issued by the identity provider.
const (
	PlanPro = "pro"

	FeatureCoreCompanionLimit  = "10_companion_limit"
	FeatureBasicCompanionLimit = "3_companion_limit"
)

type contextKey int

const identityKey contextKey = iota

var (
	userIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)
	grantPattern  = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)
)

// Identity is the resolved caller: an opaque user id plus the plan and
// feature grants attached to it. A zero UserID means anonymous.
type Identity struct {
	UserID   string
	Plan     string
	Features []string
}

// Capability is a plan-or-feature query, mirroring the identity
// provider's has({plan}) / has({feature}) predicate. Exactly one field
// should be set.
type Capability struct {
	Plan    string
	Feature string
}

// Has reports whether the identity carries the queried grant.
func (i Identity) Has(c Capability) bool {
	if c.Plan != "" {
		return i.Plan == c.Plan
	}
	if c.Feature != "" {
		for _, f := range i.Features {
			if f == c.Feature {
				return true
			}
		}
	}
	return false
}

// IsAnonymous reports whether no user is signed in.
func (i Identity) IsAnonymous() bool {
	return i.UserID == ""
}

// FromContext extracts the request identity. Returns a zero (anonymous)
// identity when none was attached.
func FromContext(ctx context.Context) Identity {
	if id, ok := ctx.Value(identityKey).(Identity); ok {
		return id
	}
	return Identity{}
}

// WithIdentity attaches an identity to the context. Exposed for tests and
// internal wiring.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

func sanitizeUserID(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || !userIDPattern.MatchString(raw) {
		return ""
	}
	return raw
}

func sanitizeGrant(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" || !grantPattern.MatchString(raw) {
		return ""
	}
	return raw
}

func identityFromRequest(r *http.Request) Identity {
	id := Identity{
		UserID: sanitizeUserID(r.Header.Get(UserIDHeaderName)),
		Plan:   sanitizeGrant(r.Header.Get(PlanHeaderName)),
	}
	if id.UserID == "" {
		// Grants without a user are meaningless.
		return Identity{}
	}

	for _, f := range strings.Split(r.Header.Get(FeaturesHeaderName), ",") {
		if g := sanitizeGrant(f); g != "" {
			id.Features = append(id.Features, g)
		}
	}
	return id
}

// Middleware injects the proxy-resolved identity into the request context.
// Requests without identity headers proceed as anonymous.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := WithIdentity(r.Context(), identityFromRequest(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
