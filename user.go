package accountsvc

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/rs/xid"
)

type Repository interface {
	FindByID(ctx context.Context, id ID) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByName(ctx context.Context, username string) (*User, error)
	Store(ctx context.Context, u *User) error
	Update(ctx context.Context, u *User) error
}

type ID string

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

func (g Gender) Valid() bool {
	return g == GenderMale || g == GenderFemale
}

// bloodGroups holds the eight clinical blood types.
var bloodGroups = map[string]bool{
	"A+": true, "A-": true,
	"B+": true, "B-": true,
	"O+": true, "O-": true,
	"AB+": true, "AB-": true,
}

func IsValidBloodGroup(bg string) bool {
	return bloodGroups[bg]
}

type User struct {
	ID           ID
	Email        string
	Username     string
	FirstName    string
	LastName     string
	DateOfBirth  Date
	Gender       Gender
	BloodGroup   string
	Image        string
	DateJoined   Date
	LastUpdate   Date
	IsActive     bool
	IsStaff      bool
	IsSuperuser  bool
	passwordHash string
}

var (
	ErrNotFound           = errors.New("user not found")
	ErrExistingUsername   = errors.New("username in use")
	ErrExistingEmail      = errors.New("email in use")
	ErrInvalidUsername    = errors.New("invalid username")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrInvalidGender      = errors.New("gender must be one of: male, female")
	ErrInvalidBloodGroup  = errors.New("invalid blood group")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInactiveAccount    = errors.New("user account is inactive")
	ErrWrongOldPassword   = errors.New("old password is incorrect")
	ErrUnauthenticated    = errors.New("invalid or missing authentication token")
	ErrForbidden          = errors.New("you can only modify your own profile")
)

var (
	usernameRegexp = regexp.MustCompile(`^\w{1,150}$`)
	emailRegexp    = regexp.MustCompile(`^\S+@\S+\.\S+$`)
)

//NewUser validates email, username and gender and returns a new User if
// arguments are valid. ID, dates and the password hash are assigned by
// the service.
func NewUser(email, username string, gender Gender) (*User, error) {
	if !usernameRegexp.MatchString(username) {
		return nil, ErrInvalidUsername
	}

	if !emailRegexp.MatchString(email) {
		return nil, ErrInvalidEmail
	}

	if !gender.Valid() {
		return nil, ErrInvalidGender
	}

	return &User{Email: email, Username: username, Gender: gender, IsActive: true}, nil
}

func nextID() ID {
	return ID(xid.New().String())
}

//IsValidID checks if a given id is valid based on the xid library definition of a valid id
// this method should change if we ever change our uid generation library
func IsValidID(id string) bool {
	if _, err := xid.FromString(id); err != nil {
		return false
	}
	return true
}

const dateLayout = "2006-01-02"

// Date is a calendar date without a time component. The zero value means
// "not set" and maps to JSON null and SQL NULL.
type Date struct {
	time.Time
}

func Today() Date {
	y, m, d := time.Now().UTC().Date()
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return Date{t}, nil
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s *string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == nil || *s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(*s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.Time, nil
}

func (d *Date) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*d = Date{}
		return nil
	case time.Time:
		*d = Date{v.UTC()}
		return nil
	case string:
		parsed, err := ParseDate(v)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	}
	return fmt.Errorf("cannot scan %T into Date", src)
}
