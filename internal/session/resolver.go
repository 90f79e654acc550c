// Package session resolves sign-up and sign-in requests into client-held
// sessions. There is no credential check: a contact that matches no account
// still gets a demo session, reported as such.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/apexai/apex/internal/metrics"
	"github.com/apexai/apex/internal/storage"
)

// ErrAlreadyRegistered is returned by SignUp when the contact already has an account.
var ErrAlreadyRegistered = errors.New("contact already registered")

// Demo identities handed out when sign-in finds no account.
const (
	DemoAdminID      = "admin_001"
	DemoAdminName    = "Apex Admin"
	DemoCustomerID   = "cust_001"
	DemoCustomerName = "Demo Customer"
)

// Mode records how a session was obtained.
type Mode string

const (
	ModeAuthenticated Mode = "authenticated"
	ModeDemo          Mode = "demo"
)

// Session identifies the caller for the lifetime of a client.
type Session struct {
	Role    storage.Role `json:"role"`
	Name    string       `json:"name"`
	Contact string       `json:"contact"`
	UserID  string       `json:"userId"`
}

// IsAdmin reports whether the session has the admin role.
func (s Session) IsAdmin() bool { return s.Role == storage.RoleAdmin }

// Outcome is the result of SignUp or SignIn.
type Outcome struct {
	Session Session `json:"session"`
	Mode    Mode    `json:"mode"`
}

type SignUpRequest struct {
	Kind        ContactKind  `json:"kind" validate:"required,oneof=phone email"`
	Contact     string       `json:"contact" validate:"required"`
	DialCode    string       `json:"dialCode,omitempty"`
	DisplayName string       `json:"fullName" validate:"required,max=120"`
	Role        storage.Role `json:"role" validate:"required,oneof=admin customer"`
}

type SignInRequest struct {
	Kind     ContactKind  `json:"kind" validate:"required,oneof=phone email"`
	Contact  string       `json:"contact" validate:"required"`
	DialCode string       `json:"dialCode,omitempty"`
	Role     storage.Role `json:"role" validate:"required,oneof=admin customer"`
}

// Users is the slice of the store the resolver needs.
type Users interface {
	FindUser(ctx context.Context, contact string) (storage.UserAccount, error)
	InsertUser(ctx context.Context, acct storage.UserAccount) (storage.UserAccount, error)
}

type Resolver struct {
	users Users

	// signupMu makes the find-then-insert of SignUp atomic within the process.
	signupMu sync.Mutex
}

func NewResolver(users Users) *Resolver {
	return &Resolver{users: users}
}

// SignUp creates an account for a contact that has none.
func (r *Resolver) SignUp(ctx context.Context, req SignUpRequest) (Outcome, error) {
	contact, err := NormalizeContact(req.Kind, req.Contact, req.DialCode)
	if err != nil {
		return Outcome{}, err
	}
	if _, err := storage.ParseRole(string(req.Role)); err != nil {
		return Outcome{}, err
	}
	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		return Outcome{}, fmt.Errorf("display name is required")
	}

	r.signupMu.Lock()
	defer r.signupMu.Unlock()

	_, err = r.users.FindUser(ctx, contact)
	switch {
	case err == nil:
		return Outcome{}, ErrAlreadyRegistered
	case !errors.Is(err, storage.ErrNotFound):
		return Outcome{}, fmt.Errorf("looking up contact: %w", err)
	}

	acct, err := r.users.InsertUser(ctx, storage.UserAccount{
		Contact:     contact,
		DisplayName: name,
		Role:        req.Role,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("creating account: %w", err)
	}

	slog.Info("account created", "user_id", acct.ID, "role", acct.Role)
	metrics.SessionsTotal.WithLabelValues(string(ModeAuthenticated)).Inc()
	return Outcome{Session: fromAccount(acct), Mode: ModeAuthenticated}, nil
}

// SignIn returns the stored account's session for a known contact. An
// unknown contact gets the demo identity for the requested role.
func (r *Resolver) SignIn(ctx context.Context, req SignInRequest) (Outcome, error) {
	contact, err := NormalizeContact(req.Kind, req.Contact, req.DialCode)
	if err != nil {
		return Outcome{}, err
	}
	role, err := storage.ParseRole(string(req.Role))
	if err != nil {
		return Outcome{}, err
	}

	acct, err := r.users.FindUser(ctx, contact)
	if err == nil {
		metrics.SessionsTotal.WithLabelValues(string(ModeAuthenticated)).Inc()
		return Outcome{Session: fromAccount(acct), Mode: ModeAuthenticated}, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return Outcome{}, fmt.Errorf("looking up contact: %w", err)
	}

	slog.Info("no account for contact, issuing demo session", "role", role)
	metrics.SessionsTotal.WithLabelValues(string(ModeDemo)).Inc()
	return Outcome{Session: demoSession(role, contact), Mode: ModeDemo}, nil
}

func fromAccount(a storage.UserAccount) Session {
	return Session{Role: a.Role, Name: a.DisplayName, Contact: a.Contact, UserID: a.ID}
}

func demoSession(role storage.Role, contact string) Session {
	if role == storage.RoleAdmin {
		return Session{Role: role, Name: DemoAdminName, Contact: contact, UserID: DemoAdminID}
	}
	return Session{Role: role, Name: DemoCustomerName, Contact: contact, UserID: DemoCustomerID}
}
