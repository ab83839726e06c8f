package tokenauthz

import "fmt"

// ErrDenied is returned by a RoleGate decision that fails. Callers
// that need to distinguish authorization failures from other errors
// should use errors.Is(err, ErrDenied).
var ErrDenied = fmt.Errorf("tokenauthz: denied")

// RoleGate is a default Authorizer driven by a static role map: a set
// of administrator identities, plus ownership-equals-manage semantics
// for everyone else. It has no notion of delegated management (one
// user managing another's tokens) beyond the admin set; deployments
// that need that wire in their own Authorizer.
type RoleGate struct {
	Admins map[string]bool
}

// NewRoleGate builds a RoleGate from a list of administrator user
// identities.
func NewRoleGate(admins []string) *RoleGate {
	set := make(map[string]bool, len(admins))
	for _, a := range admins {
		set[a] = true
	}
	return &RoleGate{Admins: set}
}

func (g *RoleGate) isAdmin(user string) bool {
	return g.Admins[user]
}

// ManageToken allows the token's owner or an administrator.
func (g *RoleGate) ManageToken(user, token string, md Metadata) error {
	if g.isAdmin(user) {
		return nil
	}
	if md.Owner != "" && md.Owner == user {
		return nil
	}
	return fmt.Errorf("%w: %s may not manage token %q owned by %q", ErrDenied, user, token, md.Owner)
}

// AdministerToken allows only administrators.
func (g *RoleGate) AdministerToken(user, token string, md Metadata) error {
	if g.isAdmin(user) {
		return nil
	}
	return fmt.Errorf("%w: %s is not an administrator", ErrDenied, user)
}

// RunAs allows a user to act as themself, a wildcard, or anyone if
// they are an administrator.
func (g *RoleGate) RunAs(user, target string) error {
	if target == "*" || target == user || g.isAdmin(user) {
		return nil
	}
	return fmt.Errorf("%w: %s may not run as %s", ErrDenied, user, target)
}
