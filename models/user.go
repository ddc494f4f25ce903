package models

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"natours-api/utils"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleGuide     Role = "guide"
	RoleLeadGuide Role = "lead-guide"
	RoleAdmin     Role = "admin"
)

const (
	DefaultPhoto       = "default.jpg"
	PasswordResetTTL   = 10 * time.Minute
	resetTokenByteSize = 24
)

type User struct {
	ID                   string     `json:"id" gorm:"primaryKey;size:36"`
	Name                 string     `json:"name" gorm:"uniqueIndex;size:40;not null" validate:"required,max=40"`
	Email                string     `json:"email" gorm:"uniqueIndex;size:191;not null" validate:"required,email"`
	Photo                string     `json:"photo" gorm:"size:255;not null;default:default.jpg"`
	Role                 Role       `json:"role" gorm:"size:16;not null;default:user" validate:"required,oneof=user guide lead-guide admin"`
	Password             string     `json:"-" gorm:"size:255;not null"`
	PasswordChangedAt    *time.Time `json:"passwordChangedAt,omitempty"`
	PasswordResetToken   *string    `json:"-" gorm:"size:64;index"`
	PasswordResetExpires *time.Time `json:"-"`
	Active               bool       `json:"-" gorm:"not null;default:true;index"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"-"`
}

var userMessages = map[string]string{
	"name.max":    "Name must have <= 40 characters",
	"role.oneof":  "Role is either: user, guide, lead-guide, admin",
	"email.email": "Please provide a valid email",
}

// UserFields lists what the query string may filter, sort and select on.
var UserFields = utils.FieldSet{
	"id":        {Column: "id", Kind: utils.KindString},
	"name":      {Column: "name", Kind: utils.KindString},
	"email":     {Column: "email", Kind: utils.KindString},
	"photo":     {Column: "photo", Kind: utils.KindString},
	"role":      {Column: "role", Kind: utils.KindString},
	"createdAt": {Column: "created_at", Kind: utils.KindTime},
}

// UserUpdateColumns is what an admin may change. Password fields are not
// part of it; they only change through the password flows.
var UserUpdateColumns = ColumnMap{
	"name":  {"name"},
	"email": {"email"},
	"photo": {"photo"},
	"role":  {"role"},
}

// MyDataColumns is what a user may change on their own account.
var MyDataColumns = ColumnMap{
	"name":  {"name"},
	"email": {"email"},
	"photo": {"photo"},
}

// ActiveUsers excludes deactivated accounts. Every user lookup goes through it.
func ActiveUsers(db *gorm.DB) *gorm.DB {
	return db.Where("active = ?", true)
}

func NewUser(name, email string) *User {
	u := &User{
		ID:     uuid.New().String(),
		Name:   name,
		Email:  email,
		Photo:  DefaultPhoto,
		Role:   RoleUser,
		Active: true,
	}
	u.Prepare()
	return u
}

func (u *User) Prepare() {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	u.Name = strings.TrimSpace(u.Name)
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if u.Photo == "" {
		u.Photo = DefaultPhoto
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
}

func (u *User) Validate() error {
	return validateStruct(u, userMessages)
}

func (u *User) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if u.Role == r {
			return true
		}
	}
	return false
}

// ChangedPasswordAfter reports whether the password changed after a token
// issued at iat. Both sides are compared in milliseconds, the precision
// tokens and datetime(3) columns keep.
func (u *User) ChangedPasswordAfter(iat time.Time) bool {
	if u.PasswordChangedAt == nil {
		return false
	}
	return iat.UnixMilli() < u.PasswordChangedAt.UnixMilli()
}

// CreatePasswordResetToken stores the hash of a fresh random token with its
// expiry and returns the raw token, which is only sent to the user.
func (u *User) CreatePasswordResetToken(now time.Time) (string, error) {
	buf := make([]byte, resetTokenByteSize)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	raw := hex.EncodeToString(buf)
	hashed := HashResetToken(raw)
	expires := now.Add(PasswordResetTTL)

	u.PasswordResetToken = &hashed
	u.PasswordResetExpires = &expires
	return raw, nil
}

func (u *User) ClearPasswordResetToken() {
	u.PasswordResetToken = nil
	u.PasswordResetExpires = nil
}

func HashResetToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// SignupInput is the body accepted by the signup endpoint.
type SignupInput struct {
	Name            string `json:"name" validate:"required,max=40"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=8"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
}

// PasswordInput carries a new password and its confirmation.
type PasswordInput struct {
	Password        string `json:"password" validate:"required,min=8"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required,eqfield=Password"`
}

type UpdatePasswordInput struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	PasswordInput
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

var passwordMessages = map[string]string{
	"name.max":                "Name must have <= 40 characters",
	"password.min":            "Password needs to be at least 8 characters",
	"passwordConfirm.eqfield": "confirm password doesn't match",
}

func (in *SignupInput) Validate() error {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	return validateStruct(in, passwordMessages)
}

func (in *PasswordInput) Validate() error {
	return validateStruct(in, passwordMessages)
}

func (in *UpdatePasswordInput) Validate() error {
	return validateStruct(in, passwordMessages)
}
