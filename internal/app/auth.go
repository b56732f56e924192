package app

import (
	"errors"
	"fmt"
	"strings"

	"qeek/internal/util"
	"qeek/pkg/auth"
	"qeek/pkg/domain"
)

// Session is an authenticated user together with their session token.
type Session struct {
	User  domain.User
	Token string
}

// SignUp registers a new account and opens a session for it.
func (a *App) SignUp(email, password string) (Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return Session{}, ErrEmailRequired
	}
	if err := auth.ValidatePassword(password); err != nil {
		return Session{}, err
	}
	taken, err := a.store.HasUserEmail(email)
	if err != nil {
		return Session{}, fmt.Errorf("check email: %w", err)
	}
	if taken {
		return Session{}, ErrEmailTaken
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}
	now := a.now().UTC()
	user := domain.User{
		ID:           util.NewID(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.SaveUser(user); err != nil {
		return Session{}, fmt.Errorf("save user: %w", err)
	}
	return a.openSession(user)
}

// SignIn verifies credentials and opens a session. Unknown email and
// wrong password collapse into the same error so the response does not
// leak which accounts exist.
func (a *App) SignIn(email, password string) (Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return Session{}, ErrEmailRequired
	}
	user, ok, err := a.store.GetUserByEmail(email)
	if err != nil {
		return Session{}, fmt.Errorf("load user: %w", err)
	}
	if !ok || !auth.CheckPassword(password, user.PasswordHash) {
		return Session{}, ErrInvalidCredentials
	}
	return a.openSession(user)
}

// SignOut revokes the session token. A token that is already gone is
// not an error.
func (a *App) SignOut(token string) error {
	if a.sessions == nil || token == "" {
		return nil
	}
	if err := a.sessions.DeleteSession(token); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// UserFromToken resolves a session token to its user. Absent, expired
// or dangling tokens report false without an error.
func (a *App) UserFromToken(token string) (domain.User, bool, error) {
	if a.sessions == nil || token == "" {
		return domain.User{}, false, nil
	}
	userID, ok, err := a.sessions.GetUserIDByToken(token)
	if err != nil {
		return domain.User{}, false, fmt.Errorf("resolve session: %w", err)
	}
	if !ok {
		return domain.User{}, false, nil
	}
	user, ok, err := a.store.GetUserByID(userID)
	if err != nil {
		return domain.User{}, false, fmt.Errorf("load user: %w", err)
	}
	return user, ok, nil
}

func (a *App) openSession(user domain.User) (Session, error) {
	if a.sessions == nil {
		return Session{}, errors.New("sessions are not configured")
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return Session{}, fmt.Errorf("open session: %w", err)
	}
	return Session{User: user, Token: token}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
