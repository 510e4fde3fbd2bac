package accountsvc

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

type Service interface {
	Register(ctx context.Context, req registerRequest) (Profile, string, error)
	Login(ctx context.Context, req loginRequest) (Profile, string, error)
	Logout(ctx context.Context, userID ID) error
	ChangePassword(ctx context.Context, userID ID, req changePasswordRequest) (*User, error)
	Profile(ctx context.Context, userID ID) (Profile, error)
	UpdateProfile(ctx context.Context, actor, target ID, req updateProfileRequest) (Profile, error)
}

type service struct {
	users  Repository
	tokens TokenRepository
	policy PasswordPolicy
}

func NewService(users Repository, tokens TokenRepository, policy PasswordPolicy) Service {
	return &service{users: users, tokens: tokens, policy: policy}
}

type registerRequest struct {
	Email       string `json:"email"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	Password2   string `json:"password2"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DateOfBirth Date   `json:"date_of_birth"`
	Gender      Gender `json:"gender"`
	BloodGroup  string `json:"blood_group"`
	Image       string `json:"image"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// updateProfileRequest lists exactly the mutable profile fields. Email is
// immutable through this path, so it has no field here and is dropped on
// decode.
type updateProfileRequest struct {
	Username    *string `json:"username"`
	FirstName   *string `json:"first_name"`
	LastName    *string `json:"last_name"`
	DateOfBirth *Date   `json:"date_of_birth"`
	Gender      *Gender `json:"gender"`
	BloodGroup  *string `json:"blood_group"`
	Image       *string `json:"image"`
}

// Profile is the response shape of a user record. The password hash is
// deliberately unreachable from here.
type Profile struct {
	ID          ID     `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DateOfBirth Date   `json:"date_of_birth"`
	Gender      Gender `json:"gender"`
	BloodGroup  string `json:"blood_group"`
	Image       string `json:"image"`
	DateJoined  Date   `json:"date_joined"`
}

func profileFromUser(u *User) Profile {
	return Profile{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		DateOfBirth: u.DateOfBirth,
		Gender:      u.Gender,
		BloodGroup:  u.BloodGroup,
		Image:       u.Image,
		DateJoined:  u.DateJoined,
	}
}

// FieldErrors maps request field names to validation messages. It is
// surfaced to clients as the response body of a 400.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e[k])
	}
	return strings.Join(parts, "; ")
}

const requiredMsg = "this field is required"

func (svc *service) Register(ctx context.Context, req registerRequest) (Profile, string, error) {
	fe := FieldErrors{}

	switch {
	case req.Email == "":
		fe["email"] = requiredMsg
	case !emailRegexp.MatchString(req.Email):
		fe["email"] = ErrInvalidEmail.Error()
	}

	switch {
	case req.Username == "":
		fe["username"] = requiredMsg
	case !usernameRegexp.MatchString(req.Username):
		fe["username"] = ErrInvalidUsername.Error()
	}

	if !req.Gender.Valid() {
		fe["gender"] = ErrInvalidGender.Error()
	}

	if req.BloodGroup != "" && !IsValidBloodGroup(req.BloodGroup) {
		fe["blood_group"] = ErrInvalidBloodGroup.Error()
	}

	switch {
	case req.Password == "":
		fe["password"] = requiredMsg
	case req.Password != req.Password2:
		fe["password"] = "passwords do not match"
	default:
		if err := svc.policy.Validate(req.Password); err != nil {
			fe["password"] = err.Error()
		}
	}

	if fe["email"] == "" {
		if u, err := svc.users.FindByEmail(ctx, req.Email); u != nil && err == nil {
			fe["email"] = ErrExistingEmail.Error()
		}
	}

	if fe["username"] == "" {
		if u, err := svc.users.FindByName(ctx, req.Username); u != nil && err == nil {
			fe["username"] = ErrExistingUsername.Error()
		}
	}

	if len(fe) > 0 {
		return Profile{}, "", fe
	}

	user, err := NewUser(req.Email, req.Username, req.Gender)
	if err != nil {
		return Profile{}, "", err
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		return Profile{}, "", err
	}

	user.ID = nextID()
	user.passwordHash = hash
	user.FirstName = req.FirstName
	user.LastName = req.LastName
	user.DateOfBirth = req.DateOfBirth
	user.BloodGroup = req.BloodGroup
	user.Image = req.Image
	user.DateJoined = Today()
	user.LastUpdate = Today()

	// the store's unique constraints catch registrations racing past
	// the checks above
	if err := svc.users.Store(ctx, user); err != nil {
		switch {
		case errors.Is(err, ErrExistingEmail):
			return Profile{}, "", FieldErrors{"email": ErrExistingEmail.Error()}
		case errors.Is(err, ErrExistingUsername):
			return Profile{}, "", FieldErrors{"username": ErrExistingUsername.Error()}
		}
		return Profile{}, "", fmt.Errorf("error saving user: %w", err)
	}

	token, err := svc.issueToken(ctx, user.ID)
	if err != nil {
		return Profile{}, "", err
	}

	return profileFromUser(user), token, nil
}

// Login validates credentials and issues or reuses the user's token.
// Failures never reveal whether the email exists.
func (svc *service) Login(ctx context.Context, req loginRequest) (Profile, string, error) {
	user, err := svc.validateCredentials(ctx, req.Email, req.Password)
	if err != nil {
		return Profile{}, "", err
	}

	token, err := svc.issueToken(ctx, user.ID)
	if err != nil {
		return Profile{}, "", err
	}

	return profileFromUser(user), token, nil
}

func (svc *service) validateCredentials(ctx context.Context, email, password string) (*User, error) {
	user, err := svc.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	if !checkPasswordHash(user.passwordHash, password) {
		return nil, ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, ErrInactiveAccount
	}

	return user, nil
}

func (svc *service) issueToken(ctx context.Context, userID ID) (string, error) {
	candidate, err := newTokenString()
	if err != nil {
		return "", err
	}

	token, err := svc.tokens.IssueOrReuse(ctx, userID, candidate)
	if err != nil {
		return "", fmt.Errorf("error issuing token: %w", err)
	}
	return token, nil
}

func (svc *service) Logout(ctx context.Context, userID ID) error {
	return svc.tokens.Revoke(ctx, userID)
}

// ChangePassword swaps the stored hash after verifying the old password.
// The user's token is left untouched so the current session stays valid.
func (svc *service) ChangePassword(ctx context.Context, userID ID, req changePasswordRequest) (*User, error) {
	user, err := svc.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if !checkPasswordHash(user.passwordHash, req.OldPassword) {
		return nil, ErrWrongOldPassword
	}

	if err := svc.policy.Validate(req.NewPassword); err != nil {
		return nil, FieldErrors{"new_password": err.Error()}
	}

	hash, err := hashPassword(req.NewPassword)
	if err != nil {
		return nil, err
	}

	user.passwordHash = hash
	user.LastUpdate = Today()
	if err := svc.users.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("error updating user: %w", err)
	}

	return user, nil
}

func (svc *service) Profile(ctx context.Context, userID ID) (Profile, error) {
	user, err := svc.users.FindByID(ctx, userID)
	if err != nil {
		return Profile{}, err
	}
	return profileFromUser(user), nil
}

// UpdateProfile applies the fields present in req to the target user.
// Only the owner may mutate a profile.
func (svc *service) UpdateProfile(ctx context.Context, actor, target ID, req updateProfileRequest) (Profile, error) {
	if actor != target {
		return Profile{}, ErrForbidden
	}

	user, err := svc.users.FindByID(ctx, target)
	if err != nil {
		return Profile{}, err
	}

	fe := FieldErrors{}

	if req.Username != nil && *req.Username != user.Username {
		switch {
		case !usernameRegexp.MatchString(*req.Username):
			fe["username"] = ErrInvalidUsername.Error()
		default:
			if u, err := svc.users.FindByName(ctx, *req.Username); u != nil && err == nil {
				fe["username"] = ErrExistingUsername.Error()
			}
		}
	}

	if req.Gender != nil && !req.Gender.Valid() {
		fe["gender"] = ErrInvalidGender.Error()
	}

	if req.BloodGroup != nil && *req.BloodGroup != "" && !IsValidBloodGroup(*req.BloodGroup) {
		fe["blood_group"] = ErrInvalidBloodGroup.Error()
	}

	if len(fe) > 0 {
		return Profile{}, fe
	}

	if req.Username != nil {
		user.Username = *req.Username
	}
	if req.FirstName != nil {
		user.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		user.LastName = *req.LastName
	}
	if req.DateOfBirth != nil {
		user.DateOfBirth = *req.DateOfBirth
	}
	if req.Gender != nil {
		user.Gender = *req.Gender
	}
	if req.BloodGroup != nil {
		user.BloodGroup = *req.BloodGroup
	}
	if req.Image != nil {
		user.Image = *req.Image
	}

	user.LastUpdate = Today()
	if err := svc.users.Update(ctx, user); err != nil {
		if errors.Is(err, ErrExistingUsername) {
			return Profile{}, FieldErrors{"username": ErrExistingUsername.Error()}
		}
		return Profile{}, fmt.Errorf("error updating user: %w", err)
	}

	return profileFromUser(user), nil
}
