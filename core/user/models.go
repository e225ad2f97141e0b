package user

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/masomo-materials/core"
)

// Roles
const (
	RoleAdmin   = "admin"   // manages classes, decides any extension request
	RoleTeacher = "teacher" // owns classes, decides the requests of their classes
	RoleStudent = "student" // watches materials of the classes they subscribe to
)

var knownRoles = map[string]bool{
	RoleAdmin:   true,
	RoleTeacher: true,
	RoleStudent: true,
}

// ParseRole normalizes a role name, eg. " Teacher " -> RoleTeacher.
func ParseRole(name string) (string, error) {
	role := core.CleanString(name, true /* lower */)
	if !knownRoles[role] {
		return "", errors.Errorf("unknown role %q", name)
	}
	return role, nil
}

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	IsActive     bool      `json:"is_active"`
	Roles        []string  `json:"roles"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    time.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return errors.Wrap(err, "hashing password")
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (u *User) IsAdmin() bool   { return u.HasRole(RoleAdmin) }
func (u *User) IsTeacher() bool { return u.HasRole(RoleTeacher) }
func (u *User) IsStudent() bool { return u.HasRole(RoleStudent) }

// IsStaff reports whether u may manage materials and see extension requests.
func (u *User) IsStaff() bool { return u.IsAdmin() || u.IsTeacher() }

// DisplayName is the name shown in notifications.
func (u *User) DisplayName() string {
	switch {
	case u.Name != "":
		return u.Name
	case u.Username != "":
		return u.Username
	}
	return u.Email
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string   `json:"name" validate:"required"`
	Username        string   `json:"username" validate:"omitempty,min=4,alphanum_"`
	Email           string   `json:"email" validate:"omitempty,email"`
	Password        string   `json:"password" validate:"required"`
	PasswordConfirm string   `json:"password_confirm" validate:"required,eqfield=Password"`
	Roles           []string `json:"roles" validate:"required,knownroles"`
}

func (nu *NewUser) Validate(ctx context.Context, validate *validator.Validate, svc Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	for i, role := range nu.Roles {
		nu.Roles[i] = core.CleanString(role, true /* lower */)
	}

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, nu.Username, nu.Email)
}

// GetFilter selects a single User; the first non-empty field wins.
type GetFilter struct {
	ID              string
	Username        string
	Email           string
	UsernameOrEmail []string // [username, email]
}
