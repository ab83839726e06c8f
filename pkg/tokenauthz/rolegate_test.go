package tokenauthz

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoleGateManageToken(t *testing.T) {
	g := NewRoleGate([]string{"root"})

	assert.NoError(t, g.ManageToken("alice", "t1", Metadata{Owner: "alice"}))
	assert.Error(t, g.ManageToken("alice", "t1", Metadata{Owner: "bob"}))
	assert.NoError(t, g.ManageToken("root", "t1", Metadata{Owner: "bob"}))
}

func TestRoleGateAdministerToken(t *testing.T) {
	g := NewRoleGate([]string{"root"})

	assert.NoError(t, g.AdministerToken("root", "t1", Metadata{}))

	err := g.AdministerToken("alice", "t1", Metadata{})
	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrDenied))
}

func TestRoleGateRunAs(t *testing.T) {
	g := NewRoleGate([]string{"root"})

	assert.NoError(t, g.RunAs("alice", "*"))
	assert.NoError(t, g.RunAs("alice", "alice"))
	assert.NoError(t, g.RunAs("root", "alice"))
	assert.Error(t, g.RunAs("alice", "bob"))
}
