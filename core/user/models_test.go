package user

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoleSet_capabilities(t *testing.T) {
	tests := []struct {
		name        string
		roles       []Role
		canSchedule bool
	}{
		{"student", []Role{RoleStudent}, false},
		{"curator", []Role{RoleCurator}, false},
		{"mentor", []Role{RoleMentor}, true},
		{"manager", []Role{RoleManager}, true},
		{"student and mentor", []Role{RoleStudent, RoleMentor}, true},
		{"no roles", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := NewRoleSet(tt.roles...)
			assert.Equal(t, tt.canSchedule, set.CanSchedule())
		})
	}
}

func TestRoleSet_slice(t *testing.T) {
	// Slice returns roles in declaration order regardless of input order
	set := NewRoleSet(RoleManager, RoleStudent, RoleManager)
	assert.Equal(t, []Role{RoleStudent, RoleManager}, set.Slice())
}

func TestUser_password(t *testing.T) {
	var usr User
	assert.NoError(t, usr.SetPassword("s3cret!"))
	assert.NotEmpty(t, usr.PasswordHash)

	assert.NoError(t, usr.CheckPassword("s3cret!"))
	assert.Error(t, usr.CheckPassword("wrong"))
}

func TestUser_roleHelpers(t *testing.T) {
	usr := User{Roles: []Role{RoleMentor, RoleManager}}
	assert.True(t, usr.IsMentor())
	assert.True(t, usr.IsManager())
	assert.False(t, usr.IsStudent())
}

func TestValidRole(t *testing.T) {
	for _, r := range AllRoles {
		assert.True(t, ValidRole(r))
	}
	assert.False(t, ValidRole(Role("principal")))
}
