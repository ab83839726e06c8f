package tokenapi

import "net/http"

// HostResolver implements the host-resolver collaborator: mapping an
// inbound request's headers (or its Host) to the token name it should
// be treated as addressing, for GET /token callers that identify the
// token by virtual host rather than a ?token= query parameter.
type HostResolver interface {
	Resolve(r *http.Request) (token string, ok bool)
}

// HeaderHostResolver resolves a token name from a fixed request
// header, falling back to a static Host → token map for deployments
// that route by virtual host instead.
type HeaderHostResolver struct {
	HeaderName string
	HostTokens map[string]string
}

// NewHeaderHostResolver builds a resolver reading headerName first and
// falling back to hostTokens[r.Host]. headerName may be empty to skip
// the header lookup entirely.
func NewHeaderHostResolver(headerName string, hostTokens map[string]string) *HeaderHostResolver {
	if hostTokens == nil {
		hostTokens = map[string]string{}
	}
	return &HeaderHostResolver{HeaderName: headerName, HostTokens: hostTokens}
}

func (h *HeaderHostResolver) Resolve(r *http.Request) (string, bool) {
	if h.HeaderName != "" {
		if v := r.Header.Get(h.HeaderName); v != "" {
			return v, true
		}
	}
	if tok, ok := h.HostTokens[r.Host]; ok {
		return tok, true
	}
	return "", false
}
