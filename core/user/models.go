package user

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mokykla/backend/core"
)

// Role is one of the closed set of roles a user may hold.
type Role string

const (
	RoleStudent Role = "student"
	RoleMentor  Role = "mentor"
	RoleCurator Role = "curator"
	RoleManager Role = "manager"
)

var AllRoles = []Role{RoleStudent, RoleMentor, RoleCurator, RoleManager}

func ValidRole(r Role) bool {
	for _, role := range AllRoles {
		if r == role {
			return true
		}
	}
	return false
}

// RoleSet is the capability set resolved for a request's caller.
// Core operations take it as an explicit parameter; nothing reads roles
// from ambient request state.
type RoleSet map[Role]struct{}

func NewRoleSet(roles ...Role) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}

func (s RoleSet) Has(r Role) bool {
	_, ok := s[r]
	return ok
}

func (s RoleSet) HasAny(roles ...Role) bool {
	for _, r := range roles {
		if s.Has(r) {
			return true
		}
	}
	return false
}

// CanSchedule reports whether the caller may create or edit schedule slots.
func (s RoleSet) CanSchedule() bool {
	return s.HasAny(RoleMentor, RoleManager)
}

func (s RoleSet) Slice() []Role {
	roles := make([]Role, 0, len(s))
	for _, r := range AllRoles { // stable order
		if s.Has(r) {
			roles = append(roles, r)
		}
	}
	return roles
}

type User struct {
	ID           int       `json:"id"`
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	IsActive     bool      `json:"is_active"`
	Roles        []Role    `json:"roles"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    time.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

// RoleSet returns the user's roles as a capability set.
func (u *User) RoleSet() RoleSet {
	return NewRoleSet(u.Roles...)
}

func (u *User) HasRole(r Role) bool {
	return u.RoleSet().Has(r)
}

func (u *User) IsMentor() bool  { return u.HasRole(RoleMentor) }
func (u *User) IsStudent() bool { return u.HasRole(RoleStudent) }
func (u *User) IsManager() bool { return u.HasRole(RoleManager) }

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string `json:"name" validate:"required"`
	Username        string `json:"username" validate:"omitempty,min=6,alphanum_"`
	Email           string `json:"email" validate:"omitempty,email"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
	Roles           []Role `json:"roles"`
}

func (nu *NewUser) Validate(svc *Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)

	if err := core.Validate.Struct(nu); err != nil {
		return err
	}
	for _, r := range nu.Roles {
		if !ValidRole(r) {
			return core.NewValidationError(nil, core.FieldError{Field: "roles", Error: "unknown role " + string(r)})
		}
	}
	return svc.CheckUniqueness(nu.Username, nu.Email)
}
