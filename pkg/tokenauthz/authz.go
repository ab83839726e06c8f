// Package tokenauthz defines the authorization gate the mutation
// pipeline consults before committing a create, update or delete, and
// a default role-map implementation suitable for single-node
// deployments or tests.
package tokenauthz

// Metadata is the narrow slice of token metadata an authorization
// decision needs: who owns the token today. The pipeline passes the
// proposed metadata for create decisions and the existing metadata for
// everything else.
type Metadata struct {
	Owner string
}

// Authorizer implements the three yes/no decisions that gate
// mutations. All three return an error (nil meaning allowed)
// rather than a bare bool, so a denial can carry a reason into the
// error response.
type Authorizer interface {
	// ManageToken reports whether user may create, update or
	// soft-delete token, given its (existing or proposed) metadata.
	ManageToken(user, token string, md Metadata) error
	// AdministerToken reports whether user may perform an
	// administrative write or hard delete of token.
	AdministerToken(user, token string, md Metadata) error
	// RunAs reports whether user may act as the identity target,
	// i.e. set run-as-user to a specific, non-wildcard value.
	RunAs(user, target string) error
}
