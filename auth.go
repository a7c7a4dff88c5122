package connman

import (
	"net/http"
	"strings"
	"sync"
)

// Authenticator attaches credentials to an outgoing request. Implementations
// must not overwrite a header the caller already set, so request-level
// headers always win over endpoint-level and global credentials.
type Authenticator interface {
	Apply(req *http.Request)
}

// APIKeyAuth sends a static key in a configurable header (X-API-Key by
// default).
type APIKeyAuth struct {
	Key    string
	Header string
}

// Apply implements Authenticator.
func (a APIKeyAuth) Apply(req *http.Request) {
	header := a.Header
	if header == "" {
		header = "X-API-Key"
	}
	if req.Header.Get(header) == "" {
		req.Header.Set(header, a.Key)
	}
}

// BearerTokenAuth sends "Authorization: Bearer <token>".
type BearerTokenAuth struct {
	Token string
}

// Apply implements Authenticator.
func (a BearerTokenAuth) Apply(req *http.Request) {
	if req.Header.Get("Authorization") == "" {
		req.Header.Set("Authorization", "Bearer "+a.Token)
	}
}

// OAuth2TokenAuth sends an OAuth2 access token as a bearer credential.
type OAuth2TokenAuth struct {
	Token string
}

// Apply implements Authenticator.
func (a OAuth2TokenAuth) Apply(req *http.Request) {
	BearerTokenAuth{Token: a.Token}.Apply(req)
}

// BasicAuth sends HTTP basic credentials.
type BasicAuth struct {
	Username string
	Password string
}

// Apply implements Authenticator.
func (a BasicAuth) Apply(req *http.Request) {
	if req.Header.Get("Authorization") == "" {
		req.SetBasicAuth(a.Username, a.Password)
	}
}

// authRegistry resolves which Authenticator applies to a request: an
// endpoint-specific credential when its pattern matches the destination,
// otherwise the global default. Mutable at runtime.
type authRegistry struct {
	mu       sync.RWMutex
	global   Authenticator
	endpoint map[string]Authenticator
}

func newAuthRegistry(global Authenticator) *authRegistry {
	return &authRegistry{
		global:   global,
		endpoint: make(map[string]Authenticator),
	}
}

func (r *authRegistry) setGlobal(a Authenticator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.global = a
}

func (r *authRegistry) setEndpoint(pattern string, a Authenticator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoint[pattern] = a
}

func (r *authRegistry) removeEndpoint(pattern string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.endpoint, pattern)
}

// resolve picks the credential for a request whose URL host (or host+path)
// is hostPath. Longest matching pattern wins, same tie-break as endpoint
// config resolution.
func (r *authRegistry) resolve(hostPath string) Authenticator {
	r.mu.RLock()
	defer r.mu.RUnlock()

	best := ""
	var chosen Authenticator
	for pattern, a := range r.endpoint {
		if !containsPattern(hostPath, pattern) {
			continue
		}
		if chosen == nil || len(pattern) > len(best) || (len(pattern) == len(best) && pattern < best) {
			best = pattern
			chosen = a
		}
	}
	if chosen != nil {
		return chosen
	}
	return r.global
}

func containsPattern(hostPath, pattern string) bool {
	return pattern != "" && strings.Contains(hostPath, pattern)
}
