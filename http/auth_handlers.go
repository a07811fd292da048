package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"heartify/auth"
	"heartify/db"
)

type signupRequest struct {
	Username   string `json:"username"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	HeartifyID string `json:"heartifyID"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userView struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	HeartifyID string `json:"heartifyID,omitempty"`
}

type userResponse struct {
	User userView `json:"user"`
}

type verifyResponse struct {
	Authenticated bool      `json:"authenticated"`
	User          *userView `json:"user,omitempty"`
	Error         string    `json:"error,omitempty"`
}

func (a *API) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, bodyStatus(err), "Invalid request body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.HeartifyID = strings.TrimSpace(req.HeartifyID)
	if req.Username == "" || req.Email == "" || req.Password == "" || req.HeartifyID == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	if _, err := db.FindUserByEmail(req.Email); err == nil {
		writeError(w, http.StatusBadRequest, "Email already in use")
		return
	} else if !errors.Is(err, db.ErrNotFound) {
		a.internalError(w, "lookup user by email", err)
		return
	}
	if _, err := db.FindUserByHeartifyID(req.HeartifyID); err == nil {
		writeError(w, http.StatusBadRequest, "Heartify ID already in use")
		return
	} else if !errors.Is(err, db.ErrNotFound) {
		a.internalError(w, "lookup user by heartify id", err)
		return
	}

	hash, err := auth.HashPassword(req.Password, a.deps.Auth.BcryptCost)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		writeError(w, http.StatusBadRequest, "Invalid password format")
		return
	}
	if err != nil {
		a.internalError(w, "hash password", err)
		return
	}

	user := &db.User{Username: req.Username, Email: req.Email, PasswordHash: hash, HeartifyID: req.HeartifyID}
	if err := db.CreateUser(user); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			writeError(w, http.StatusBadRequest, "Account already exists")
			return
		}
		a.internalError(w, "create user", err)
		return
	}

	if !a.setSession(w, user.ID) {
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: userView{ID: user.ID, Name: user.Username}})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, bodyStatus(err), "Invalid request body")
		return
	}

	user, err := db.FindUserByEmail(strings.TrimSpace(req.Email))
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		a.internalError(w, "lookup user by email", err)
		return
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	if !a.setSession(w, user.ID) {
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: viewOf(user)})
}

func (a *API) handleVerifyToken(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(auth.CookieName)
	if err != nil || cookie.Value == "" {
		writeJSON(w, http.StatusUnauthorized, verifyResponse{})
		return
	}
	claims, err := a.deps.Tokens.Validate(cookie.Value)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, verifyResponse{Error: "Invalid token"})
		return
	}
	user, err := db.FindUserByID(claims.UserID)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, verifyResponse{})
		return
	}
	view := viewOf(user)
	writeJSON(w, http.StatusOK, verifyResponse{Authenticated: true, User: &view})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.deps.Auth.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// requireAuth admits requests carrying a valid session cookie for an
// existing user and stores that user in the request context.
func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(auth.CookieName)
		if err != nil || cookie.Value == "" {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		claims, err := a.deps.Tokens.Validate(cookie.Value)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		user, err := db.FindUserByID(claims.UserID)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "User not found")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), UserKey, user)))
	})
}

// CurrentUser returns the user stored by requireAuth.
func CurrentUser(ctx context.Context) *db.User {
	user, _ := ctx.Value(UserKey).(*db.User)
	return user
}

func (a *API) setSession(w http.ResponseWriter, userID string) bool {
	token, err := a.deps.Tokens.Issue(userID)
	if err != nil {
		a.internalError(w, "issue token", err)
		return false
	}
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(a.deps.Tokens.TTL().Seconds()),
		HttpOnly: true,
		Secure:   a.deps.Auth.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return true
}

func (a *API) internalError(w http.ResponseWriter, op string, err error) {
	a.logger.Error(op, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func viewOf(u *db.User) userView {
	return userView{ID: u.ID, Name: u.Username, HeartifyID: u.HeartifyID}
}
