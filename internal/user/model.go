package user

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	FirstName  string     `db:"first_name" json:"firstName"`
	LastName   string     `db:"last_name" json:"lastName"`
	Email      string     `db:"email" json:"email"`
	Password   string     `db:"password" json:"-"`
	Age        *int       `db:"age" json:"age,omitempty"`
	Gender     *string    `db:"gender" json:"gender,omitempty"`
	ProfileURL string     `db:"profile_url" json:"profileUrl"`
	About      string     `db:"about" json:"about"`
	Skills     StringList `db:"skills" json:"skills"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updatedAt"`
}

// Profile is the shape other users see: no email, no credentials.
type Profile struct {
	ID         uuid.UUID  `json:"id"`
	FirstName  string     `json:"firstName"`
	LastName   string     `json:"lastName"`
	Age        *int       `json:"age,omitempty"`
	Gender     *string    `json:"gender,omitempty"`
	ProfileURL string     `json:"profileUrl"`
	About      string     `json:"about"`
	Skills     StringList `json:"skills"`
}

// Summary is the snapshot attached to chat and presence events.
type Summary struct {
	ID         uuid.UUID `json:"id"`
	FirstName  string    `json:"firstName"`
	LastName   string    `json:"lastName"`
	ProfileURL string    `json:"profileUrl"`
}

func (u *User) Profile() Profile {
	return Profile{
		ID:         u.ID,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		Age:        u.Age,
		Gender:     u.Gender,
		ProfileURL: u.ProfileURL,
		About:      u.About,
		Skills:     u.Skills,
	}
}

func (u *User) Summary() Summary {
	return Summary{ID: u.ID, FirstName: u.FirstName, LastName: u.LastName, ProfileURL: u.ProfileURL}
}

const DefaultAbout = "This is the default about of the user"

// StringList is stored as a JSONB array.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *StringList) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = StringList{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("StringList: unsupported type %T", src)
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*l = out
	return nil
}

// ---------------------------------------------
// Requests
// ---------------------------------------------

type SignupRequest struct {
	FirstName string `json:"firstName" validate:"required,min=4,max=18"`
	LastName  string `json:"lastName" validate:"required,max=50"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,strongpassword"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// EditProfileRequest carries only the fields a user may change; nil means untouched.
type EditProfileRequest struct {
	FirstName  *string   `json:"firstName" validate:"omitempty,min=4,max=18"`
	LastName   *string   `json:"lastName" validate:"omitempty,min=1,max=50"`
	Email      *string   `json:"email" validate:"omitempty,email"`
	Age        *int      `json:"age" validate:"omitempty,min=18"`
	Gender     *string   `json:"gender" validate:"omitempty,oneof=male female others"`
	ProfileURL *string   `json:"profileUrl" validate:"omitempty,url"`
	About      *string   `json:"about" validate:"omitempty,max=500"`
	Skills     *[]string `json:"skills" validate:"omitempty,max=20,dive,min=1,max=40"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required"`
}

type AuthResponse struct {
	Message     string `json:"message"`
	AccessToken string `json:"access_token"`
	User        *User  `json:"data"`
}
