package accountsvc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// response is the envelope shared by the mutating endpoints. Fields not
// set by an operation are dropped from the encoded body.
type response struct {
	Status   int      `json:"status"`
	Success  bool     `json:"success"`
	Message  string   `json:"message"`
	Data     *Profile `json:"data,omitempty"`
	Token    string   `json:"token,omitempty"`
	Email    string   `json:"email,omitempty"`
	Username string   `json:"username,omitempty"`
}

type contextKey string

const identityKey contextKey = "acting-user-id"

// IdentityFromContext returns the acting user bound by RequireAuth.
func IdentityFromContext(ctx context.Context) (ID, bool) {
	id, ok := ctx.Value(identityKey).(ID)
	return id, ok
}

// RequireAuth extracts a bearer token from the Authorization header,
// resolves it against the token registry and binds the owner as the
// request's acting identity. Requests without a resolvable token are
// rejected with 401.
func RequireAuth(next http.Handler, tokens TokenRepository) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			encodeError(ErrUnauthenticated, w)
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			encodeError(ErrUnauthenticated, w)
			return
		}

		userID, err := tokens.Resolve(r.Context(), parts[1])
		if err != nil {
			encodeError(ErrUnauthenticated, w)
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func RegisterHandler(svc Service) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		req, err := decodeRegisterRequest(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		profile, token, err := svc.Register(r.Context(), req)
		if err != nil {
			encodeError(err, w)
			return
		}

		w.WriteHeader(http.StatusCreated)
		encode(w, response{
			Status:  http.StatusCreated,
			Success: true,
			Message: "User registered successfully",
			Data:    &profile,
			Token:   token,
		})
	})
}

func LoginHandler(svc Service) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		req, err := decodeLoginRequest(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		profile, token, err := svc.Login(r.Context(), req)
		if err != nil {
			encodeError(err, w)
			return
		}

		encode(w, response{
			Status:  http.StatusOK,
			Success: true,
			Message: "Login successful",
			Data:    &profile,
			Token:   token,
		})
	})
}

func LogoutHandler(svc Service) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		userID, ok := IdentityFromContext(r.Context())
		if !ok {
			encodeError(ErrUnauthenticated, w)
			return
		}

		if err := svc.Logout(r.Context(), userID); err != nil {
			encodeError(err, w)
			return
		}

		encode(w, response{
			Status:  http.StatusOK,
			Success: true,
			Message: "User logged out successfully",
		})
	})
}

func ChangePasswordHandler(svc Service) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		userID, ok := IdentityFromContext(r.Context())
		if !ok {
			encodeError(ErrUnauthenticated, w)
			return
		}

		req, err := decodeChangePasswordRequest(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		user, err := svc.ChangePassword(r.Context(), userID, req)
		if err != nil {
			encodeError(err, w)
			return
		}

		// The new password is deliberately not echoed back.
		encode(w, response{
			Status:   http.StatusOK,
			Success:  true,
			Message:  "Password changed successfully",
			Email:    user.Email,
			Username: user.Username,
		})
	})
}

func GetProfileHandler(svc Service) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		userID, ok := IdentityFromContext(r.Context())
		if !ok {
			encodeError(ErrUnauthenticated, w)
			return
		}

		profile, err := svc.Profile(r.Context(), userID)
		if err != nil {
			encodeError(err, w)
			return
		}

		encode(w, profile)
	})
}

func UpdateProfileHandler(svc Service) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		userID, ok := IdentityFromContext(r.Context())
		if !ok {
			encodeError(ErrUnauthenticated, w)
			return
		}

		req, err := decodeUpdateProfileRequest(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		// The route only exposes the acting identity's own record, so
		// actor and target coincide here; the service still checks.
		profile, err := svc.UpdateProfile(r.Context(), userID, userID, req)
		if err != nil {
			encodeError(err, w)
			return
		}

		w.WriteHeader(http.StatusCreated)
		encode(w, response{
			Status:  http.StatusCreated,
			Success: true,
			Message: "Profile updated successfully",
			Data:    &profile,
		})
	})
}

// RequestLogger logs one line per request with method, path, status and
// duration.
func RequestLogger(next http.Handler, log *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", time.Since(start).String(),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func encode(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func encodeError(err error, w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")

	var fe FieldErrors
	if errors.As(err, &fe) {
		w.WriteHeader(http.StatusBadRequest)
		encode(w, fe)
		return
	}

	switch err {
	case ErrWrongOldPassword:
		w.WriteHeader(http.StatusBadRequest)
		encode(w, FieldErrors{"old_password": err.Error()})
		return
	case ErrInvalidCredentials, ErrInactiveAccount, ErrTokenNotFound:
		w.WriteHeader(http.StatusBadRequest)
	case ErrUnauthenticated:
		w.WriteHeader(http.StatusUnauthorized)
	case ErrForbidden:
		w.WriteHeader(http.StatusForbidden)
	case ErrNotFound:
		w.WriteHeader(http.StatusNotFound)
	default:
		w.WriteHeader(http.StatusInternalServerError)
	}

	encode(w, map[string]interface{}{"error": err.Error()})
}

func decodeRegisterRequest(body io.ReadCloser) (registerRequest, error) {
	req := registerRequest{}
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return registerRequest{}, err
	}
	return req, nil
}

func decodeLoginRequest(body io.ReadCloser) (loginRequest, error) {
	req := loginRequest{}
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return loginRequest{}, err
	}
	return req, nil
}

func decodeChangePasswordRequest(body io.ReadCloser) (changePasswordRequest, error) {
	req := changePasswordRequest{}
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return changePasswordRequest{}, err
	}
	return req, nil
}

func decodeUpdateProfileRequest(body io.ReadCloser) (updateProfileRequest, error) {
	req := updateProfileRequest{}
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return updateProfileRequest{}, err
	}
	return req, nil
}
