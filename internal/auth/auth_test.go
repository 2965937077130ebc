package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIdentityFromRequest(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    Identity
	}{
		{
			name:    "no headers",
			headers: map[string]string{},
			want:    Identity{},
		},
		{
			name: "user with plan and features",
			headers: map[string]string{
				UserIDHeaderName:   "user_2abc",
				PlanHeaderName:     "pro",
				FeaturesHeaderName: "10_companion_limit,3_companion_limit",
			},
			want: Identity{
				UserID:   "user_2abc",
				Plan:     "pro",
				Features: []string{FeatureCoreCompanionLimit, FeatureBasicCompanionLimit},
			},
		},
		{
			name: "grants without user are dropped",
			headers: map[string]string{
				PlanHeaderName:     "pro",
				FeaturesHeaderName: "10_companion_limit",
			},
			want: Identity{},
		},
		{
			name: "feature list trims and lowercases",
			headers: map[string]string{
				UserIDHeaderName:   "user-1",
				FeaturesHeaderName: " 3_Companion_Limit , ",
			},
			want: Identity{UserID: "user-1", Features: []string{FeatureBasicCompanionLimit}},
		},
		{
			name: "malformed user id rejected",
			headers: map[string]string{
				UserIDHeaderName: "user one\n",
			},
			want: Identity{},
		},
		{
			name: "malformed plan dropped",
			headers: map[string]string{
				UserIDHeaderName: "user-1",
				PlanHeaderName:   "pro!",
			},
			want: Identity{UserID: "user-1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			got := identityFromRequest(req)
			if got.UserID != tt.want.UserID || got.Plan != tt.want.Plan {
				t.Errorf("Got %+v, want %+v", got, tt.want)
			}
			if len(got.Features) != len(tt.want.Features) {
				t.Fatalf("Got features %v, want %v", got.Features, tt.want.Features)
			}
			for i := range got.Features {
				if got.Features[i] != tt.want.Features[i] {
					t.Errorf("Got features %v, want %v", got.Features, tt.want.Features)
				}
			}
		})
	}
}

func TestHas(t *testing.T) {
	id := Identity{UserID: "user-1", Plan: PlanPro, Features: []string{FeatureCoreCompanionLimit}}

	if !id.Has(Capability{Plan: PlanPro}) {
		t.Error("Expected pro plan to match")
	}
	if id.Has(Capability{Plan: "basic"}) {
		t.Error("Expected other plan not to match")
	}
	if !id.Has(Capability{Feature: FeatureCoreCompanionLimit}) {
		t.Error("Expected granted feature to match")
	}
	if id.Has(Capability{Feature: FeatureBasicCompanionLimit}) {
		t.Error("Expected ungranted feature not to match")
	}
	if id.Has(Capability{}) {
		t.Error("Expected empty capability not to match")
	}
}

func TestIsAnonymous(t *testing.T) {
	if !(Identity{}).IsAnonymous() {
		t.Error("Expected zero identity to be anonymous")
	}
	if (Identity{UserID: "user-1"}).IsAnonymous() {
		t.Error("Expected identified user not to be anonymous")
	}
}

func TestMiddleware(t *testing.T) {
	var seen Identity
	next := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
	})

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(UserIDHeaderName, "user-1")
	req.Header.Set(PlanHeaderName, PlanPro)
	Middleware()(next).ServeHTTP(httptest.NewRecorder(), req)

	if seen.UserID != "user-1" || seen.Plan != PlanPro {
		t.Errorf("Expected identity injected into context, got %+v", seen)
	}
}

func TestFromContextWithoutIdentity(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	if id := FromContext(req.Context()); !id.IsAnonymous() {
		t.Errorf("Expected anonymous identity, got %+v", id)
	}
}
