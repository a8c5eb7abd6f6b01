// Package session owns the client side of the user lifecycle: the in-process
// current-user slot, the sign-in/sign-out bootstrap and the retry poller used
// when a critical fetch fails.
package session

import (
	"context"
	"log/slog"
	"sync"

	"triviaa-companion/internal/models"
)

// ProfileStore is the slice of the local store the session layer depends on.
type ProfileStore interface {
	GetUser(ctx context.Context) *models.UserProfile
	SaveUser(ctx context.Context, user models.UserProfile) (bool, error)
	ClearSession(ctx context.Context) (bool, error)
}

// Handle is the process-wide single-slot cache of the authenticated user.
// It is populated lazily from the local store and passed to whatever needs
// the current user, instead of living in a package-level variable.
type Handle struct {
	mu    sync.Mutex
	user  *models.UserProfile
	store ProfileStore
	log   *slog.Logger
}

func NewHandle(log *slog.Logger, store ProfileStore) *Handle {
	return &Handle{store: store, log: log}
}

// Initialize fills the slot from the local store if it is still empty.
// Idempotent; a load failure leaves the slot empty rather than stale. Two
// near-simultaneous calls may both load, which is harmless: the operation has
// no side effects beyond the slot write and the slot is a single reference.
func (h *Handle) Initialize(ctx context.Context) {
	h.mu.Lock()
	if h.user != nil {
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()

	user := h.store.GetUser(ctx)

	h.mu.Lock()
	h.user = user
	h.mu.Unlock()

	if user != nil {
		h.log.Debug("user_handle_initialized", "user_id", user.UserID)
	} else {
		h.log.Debug("user_handle_empty")
	}
}

// Current returns the slot value, or nil when no user is established.
func (h *Handle) Current() *models.UserProfile {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.user
}

// Set overwrites the slot. Used after registration or a profile edit.
func (h *Handle) Set(user *models.UserProfile) {
	h.mu.Lock()
	h.user = user
	h.mu.Unlock()
}

// Reset empties the slot.
func (h *Handle) Reset() {
	h.Set(nil)
}
