package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"triviaa-companion/internal/backend"
	"triviaa-companion/internal/logging"
	"triviaa-companion/internal/models"
)

var (
	// ErrRegistrationRequired means the authenticated phone number has no
	// backend profile yet; the caller should route to the registration flow.
	ErrRegistrationRequired = errors.New("registration required")

	// ErrLocalSaveFailed means the remote operation succeeded but the local
	// cache write did not; the remote profile is live and callers should say
	// so rather than report a plain failure.
	ErrLocalSaveFailed = errors.New("profile active remotely but local save failed")

	// ErrNoSession means no user is currently established.
	ErrNoSession = errors.New("no active session")
)

// Backend is the slice of the remote client the bootstrap depends on.
type Backend interface {
	CheckPhone(ctx context.Context, phoneNumber string) (bool, error)
	Login(ctx context.Context, req backend.LoginRequest) (*models.UserProfile, error)
	Register(ctx context.Context, req backend.RegisterRequest) (*models.UserProfile, error)
}

// Authenticator is the external auth provider's sign-out path. Sign-in itself
// (phone verification) happens outside this process.
type Authenticator interface {
	SignOut(ctx context.Context) error
}

// AuthFunc adapts a plain function to the Authenticator interface.
type AuthFunc func(ctx context.Context) error

func (f AuthFunc) SignOut(ctx context.Context) error { return f(ctx) }

// Identity is what the auth provider hands over on a sign-in event.
type Identity struct {
	PhoneNumber string
	UserKey     string
	DeviceToken string
}

// Bootstrap establishes the working profile at process start and on every
// auth-state change: local cache first, then remote, else registration.
type Bootstrap struct {
	store   ProfileStore
	handle  *Handle
	backend Backend
	auth    Authenticator
	log     *slog.Logger
}

func NewBootstrap(log *slog.Logger, store ProfileStore, handle *Handle, be Backend, auth Authenticator) *Bootstrap {
	return &Bootstrap{store: store, handle: handle, backend: be, auth: auth, log: log}
}

// SignIn resolves a fresh sign-in event. An existing backend profile is
// fetched, persisted and installed in the handle. A missing profile returns
// ErrRegistrationRequired without touching the auth state. Any backend
// failure fail-closes: the auth provider is signed out exactly once and the
// error propagates, so the app never sits half-authenticated.
func (b *Bootstrap) SignIn(ctx context.Context, id Identity) (*models.UserProfile, error) {
	if id.PhoneNumber == "" {
		return nil, b.failClosed(ctx, errors.New("sign-in event carried no phone number"))
	}

	b.log.Info("sign_in_started", "phone", logging.MaskPhone(id.PhoneNumber), "user_key", logging.MaskKey(id.UserKey))

	exists, err := b.backend.CheckPhone(ctx, id.PhoneNumber)
	if err != nil {
		return nil, b.failClosed(ctx, fmt.Errorf("phone existence check: %w", err))
	}
	if !exists {
		b.log.Info("sign_in_needs_registration", "phone", logging.MaskPhone(id.PhoneNumber))
		return nil, ErrRegistrationRequired
	}

	profile, err := b.backend.Login(ctx, backend.LoginRequest{
		PhoneNumber: id.PhoneNumber,
		UserKey:     id.UserKey,
	})
	if err != nil {
		return nil, b.failClosed(ctx, fmt.Errorf("login: %w", err))
	}

	return b.adopt(ctx, profile)
}

// CompleteRegistration finishes the profile-creation flow: the backend
// creates the profile, then the same persist-and-populate steps run as for a
// normal sign-in. Registration errors surface inline; they do not fail-close.
func (b *Bootstrap) CompleteRegistration(ctx context.Context, req backend.RegisterRequest) (*models.UserProfile, error) {
	profile, err := b.backend.Register(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	b.log.Info("registration_completed", "user_id", profile.UserID)
	return b.adopt(ctx, profile)
}

// SignOut tears the local session down: the profile cache entry goes away and
// the handle empties. The remote record and unrelated local keys (device
// token, coins) are untouched.
func (b *Bootstrap) SignOut(ctx context.Context) error {
	cleared, err := b.store.ClearSession(ctx)
	b.handle.Reset()
	if err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	if !cleared {
		b.log.Warn("session_key_still_present_after_clear")
	}
	b.log.Info("signed_out")
	return nil
}

// adopt persists the fetched profile and installs it in the handle. The
// handle is populated even when the local write fails; the remote side of the
// operation already succeeded and the session is usable for this process.
func (b *Bootstrap) adopt(ctx context.Context, profile *models.UserProfile) (*models.UserProfile, error) {
	saved, err := b.store.SaveUser(ctx, *profile)
	b.handle.Set(profile)
	if err != nil {
		return profile, fmt.Errorf("%w: %w", ErrLocalSaveFailed, err)
	}
	if !saved {
		b.log.Warn("profile_save_not_verified", "user_id", profile.UserID)
	}
	b.log.Info("session_established", "user_id", profile.UserID)
	return profile, nil
}

func (b *Bootstrap) failClosed(ctx context.Context, cause error) error {
	b.log.Warn("sign_in_failed_signing_out", "error", cause)
	if err := b.auth.SignOut(ctx); err != nil {
		b.log.Error("auth_sign_out_failed", "error", err)
	}
	return fmt.Errorf("sign-in failed: %w", cause)
}
