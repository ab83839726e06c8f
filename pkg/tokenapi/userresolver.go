package tokenapi

import "net/http"

// UserResolver populates the authenticated-user identity every
// mutation and listing call needs. The authentication layer itself is
// an external collaborator; UserResolver only extracts whatever
// identity an upstream authenticator has already attached to the
// request.
type UserResolver interface {
	Resolve(r *http.Request) (user string, ok bool)
}

// HeaderUserResolver reads the authenticated user from a fixed request
// header, the shape an upstream reverse proxy or auth sidecar would
// set after verifying a credential this service never sees.
type HeaderUserResolver struct {
	HeaderName string
}

// NewHeaderUserResolver builds a resolver reading headerName.
// headerName defaults to "X-Authenticated-User" when empty.
func NewHeaderUserResolver(headerName string) *HeaderUserResolver {
	if headerName == "" {
		headerName = "X-Authenticated-User"
	}
	return &HeaderUserResolver{HeaderName: headerName}
}

func (h *HeaderUserResolver) Resolve(r *http.Request) (string, bool) {
	v := r.Header.Get(h.HeaderName)
	return v, v != ""
}
