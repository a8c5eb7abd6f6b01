package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"triviaa-companion/internal/backend"
	"triviaa-companion/internal/models"
	"triviaa-companion/internal/security"
	"triviaa-companion/internal/session"
)

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "has_user": s.handle.Current() != nil})
}

func (s *Server) getSession(c *gin.Context) {
	ctx, cancel := s.ctx(c)
	defer cancel()

	s.handle.Initialize(ctx)
	user := s.handle.Current()
	if user == nil {
		c.JSON(http.StatusNotFound, errorBody("no_session", "no user is signed in"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":        user,
		"coins":       s.store.Coins(ctx),
		"last_active": s.store.LastActive(ctx),
	})
}

type signInRequest struct {
	PhoneNumber string `json:"phone_number"`
	UserKey     string `json:"user_key"`
	DeviceToken string `json:"device_token"`
}

func (s *Server) signIn(c *gin.Context) {
	var req signInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("invalid_body", err.Error()))
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	if req.DeviceToken != "" {
		if err := s.store.SetDeviceToken(ctx, req.DeviceToken); err != nil {
			s.log.Warn("device_token_save_failed", "error", err)
		}
	}

	profile, err := s.bootstrap.SignIn(ctx, session.Identity{
		PhoneNumber: req.PhoneNumber,
		UserKey:     req.UserKey,
		DeviceToken: req.DeviceToken,
	})
	switch {
	case errors.Is(err, session.ErrRegistrationRequired):
		c.JSON(http.StatusConflict, gin.H{
			"error": gin.H{"code": "registration_required", "message": "no profile exists for this phone number"},
			"registration": gin.H{
				"phone_number": req.PhoneNumber,
				"user_key":     req.UserKey,
				"device_token": req.DeviceToken,
			},
		})
	case errors.Is(err, session.ErrLocalSaveFailed):
		// remote session is live; the UI should say the local sync failed
		// rather than report a failed sign-in
		c.JSON(http.StatusOK, gin.H{"user": profile, "warning": "saved_remotely_local_sync_failed"})
	case err != nil:
		c.JSON(http.StatusUnauthorized, errorBody("auth_failed", err.Error()))
	default:
		c.JSON(http.StatusOK, gin.H{"user": profile})
	}
}

type registerRequest struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Age            int    `json:"age"`
	Username       string `json:"username"`
	ProfilePicture string `json:"profile_picture"`
	PhoneNumber    string `json:"phone_number"`
	UserKey        string `json:"user_key"`
	DeviceToken    string `json:"device_token"`
}

func (s *Server) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("invalid_body", err.Error()))
		return
	}

	if err := security.ValidateName(req.Name); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("invalid_name", err.Error()))
		return
	}
	if err := security.ValidateUsername(req.Username); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("invalid_username", err.Error()))
		return
	}
	if err := security.ValidateAge(req.Age); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("invalid_age", err.Error()))
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	available, err := s.client.CheckUsername(ctx, req.Username)
	if err != nil {
		c.JSON(http.StatusBadGateway, errorBody("backend_unavailable", err.Error()))
		return
	}
	if !available {
		c.JSON(http.StatusConflict, errorBody("username_taken", "username is already taken"))
		return
	}

	picture := req.ProfilePicture
	if picture == "" {
		picture = s.cfg.DefaultProfilePicture
	}

	profile, err := s.bootstrap.CompleteRegistration(ctx, backend.RegisterRequest{
		Name:           req.Name,
		Email:          req.Email,
		PhoneNumber:    req.PhoneNumber,
		ProfilePicture: picture,
		Username:       req.Username,
		DeviceToken:    req.DeviceToken,
		UserKey:        req.UserKey,
		Age:            req.Age,
	})
	switch {
	case errors.Is(err, session.ErrLocalSaveFailed):
		c.JSON(http.StatusCreated, gin.H{"user": profile, "warning": "saved_remotely_local_sync_failed"})
	case err != nil:
		c.JSON(http.StatusBadGateway, errorBody("registration_failed", err.Error()))
	default:
		c.JSON(http.StatusCreated, gin.H{"user": profile})
	}
}

func (s *Server) signOut(c *gin.Context) {
	ctx, cancel := s.ctx(c)
	defer cancel()

	s.poller.Cancel()
	if err := s.bootstrap.SignOut(ctx); err != nil {
		c.JSON(http.StatusInternalServerError, errorBody("sign_out_failed", err.Error()))
		return
	}
	c.Status(http.StatusNoContent)
}

// getProfile fetches the aggregated profile view. On failure it engages the
// retry poller and reports the retry state alongside the last-known data, so
// the UI can show the "Attempt N" dialog instead of a dead screen.
func (s *Server) getProfile(c *gin.Context) {
	user := s.handle.Current()
	if user == nil {
		c.JSON(http.StatusNotFound, errorBody("no_session", "no user is signed in"))
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	data, err := s.client.Profile(ctx, user.UserID)
	if err == nil {
		s.setLastProfile(data)
		s.poller.Cancel() // a natural fetch succeeded; dismiss any retry cycle
		c.JSON(http.StatusOK, gin.H{"profile": data})
		return
	}

	s.log.Warn("profile_fetch_failed", "user_id", user.UserID, "error", err)
	userID := user.UserID
	s.poller.Start(context.Background(), func(pollCtx context.Context) error {
		fresh, err := s.client.Profile(pollCtx, userID)
		if err != nil {
			return err
		}
		s.setLastProfile(fresh)
		return nil
	})

	body := gin.H{
		"error": gin.H{"code": "profile_unavailable", "message": err.Error()},
		"retry": gin.H{"state": s.poller.State().String(), "attempts": s.poller.Attempts()},
	}
	if last := s.getLastProfile(); last != nil {
		body["profile"] = last
		body["stale"] = true
	}
	c.JSON(http.StatusServiceUnavailable, body)
}

type updateProfileRequest struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Username       string `json:"username"`
	ProfilePicture string `json:"profile_picture"`
	DeviceToken    string `json:"device_token"`
}

func (s *Server) updateProfile(c *gin.Context) {
	user := s.handle.Current()
	if user == nil {
		c.JSON(http.StatusNotFound, errorBody("no_session", "no user is signed in"))
		return
	}

	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("invalid_body", err.Error()))
		return
	}
	if err := security.ValidateName(req.Name); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("invalid_name", err.Error()))
		return
	}
	if err := security.ValidateUsername(req.Username); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("invalid_username", err.Error()))
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	updated, err := s.client.UpdateUser(ctx, user.UserID, backend.UpdateUserRequest{
		Name:           req.Name,
		Email:          req.Email,
		PhoneNumber:    user.PhoneNumber,
		ProfilePicture: req.ProfilePicture,
		Username:       req.Username,
		DeviceToken:    req.DeviceToken,
		UserKey:        user.UserKey,
	})
	if err != nil {
		c.JSON(http.StatusBadGateway, errorBody("update_failed", err.Error()))
		return
	}

	saved, saveErr := s.store.SaveUser(ctx, *updated)
	s.handle.Set(updated)
	if saveErr != nil || !saved {
		s.log.Warn("profile_update_local_save_failed", "error", saveErr)
		c.JSON(http.StatusOK, gin.H{"user": updated, "warning": "saved_remotely_local_sync_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": updated})
}

func (s *Server) retryStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"state":    s.poller.State().String(),
		"attempts": s.poller.Attempts(),
	})
}

func (s *Server) cancelRetry(c *gin.Context) {
	s.poller.Cancel()
	c.Status(http.StatusNoContent)
}

// Economy reads are secondary data: a failed fetch is logged and answered
// with the last-known or zero placeholder instead of an error, so screens
// render immediately.

func (s *Server) getCoins(c *gin.Context) {
	user := s.handle.Current()
	if user == nil {
		c.JSON(http.StatusNotFound, errorBody("no_session", "no user is signed in"))
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	balance, err := s.client.CoinBalance(ctx, user.UserID)
	if err != nil {
		s.log.Warn("coin_balance_fetch_failed", "user_id", user.UserID, "error", err)
		c.JSON(http.StatusOK, gin.H{
			"balance": models.CoinBalance{UserID: user.UserID, CoinBalance: s.store.Coins(ctx)},
			"stale":   true,
		})
		return
	}

	if err := s.store.SetCoins(ctx, balance.CoinBalance); err != nil {
		s.log.Warn("coins_cache_write_failed", "error", err)
	}
	c.JSON(http.StatusOK, gin.H{"balance": balance})
}

func (s *Server) getCoinTransactions(c *gin.Context) {
	user := s.handle.Current()
	if user == nil {
		c.JSON(http.StatusNotFound, errorBody("no_session", "no user is signed in"))
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	txns, err := s.client.CoinTransactions(ctx, user.UserID)
	if err != nil {
		s.log.Warn("coin_transactions_fetch_failed", "user_id", user.UserID, "error", err)
		c.JSON(http.StatusOK, gin.H{"transactions": []models.CoinTransaction{}, "stale": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txns})
}

func (s *Server) getPoints(c *gin.Context) {
	user := s.handle.Current()
	if user == nil {
		c.JSON(http.StatusNotFound, errorBody("no_session", "no user is signed in"))
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	balance, err := s.client.PointsBalance(ctx, user.UserID)
	if err != nil {
		s.log.Warn("points_balance_fetch_failed", "user_id", user.UserID, "error", err)
		c.JSON(http.StatusOK, gin.H{
			"balance": models.PointsBalance{UserID: user.UserID},
			"stale":   true,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": balance})
}

func (s *Server) getPointsTransactions(c *gin.Context) {
	user := s.handle.Current()
	if user == nil {
		c.JSON(http.StatusNotFound, errorBody("no_session", "no user is signed in"))
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	txns, err := s.client.PointsTransactions(ctx, user.UserID)
	if err != nil {
		s.log.Warn("points_transactions_fetch_failed", "user_id", user.UserID, "error", err)
		c.JSON(http.StatusOK, gin.H{"transactions": []models.PointsTransaction{}, "stale": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txns})
}

// getLeaderboard splits the rank-sorted result into the podium and the rest,
// the shape the leaderboard screen renders.
func (s *Server) getLeaderboard(c *gin.Context) {
	threshold := intQuery(c, "threshold", 500)
	limit := intQuery(c, "limit", 5)

	ctx, cancel := s.ctx(c)
	defer cancel()

	players, err := s.client.Leaderboard(ctx, threshold, limit)
	if err != nil {
		s.log.Warn("leaderboard_fetch_failed", "error", err)
		c.JSON(http.StatusOK, gin.H{
			"top_players":   []models.LeaderboardPlayer{},
			"other_players": []models.LeaderboardPlayer{},
			"stale":         true,
		})
		return
	}

	split := 3
	if len(players) < split {
		split = len(players)
	}
	c.JSON(http.StatusOK, gin.H{
		"top_players":   players[:split],
		"other_players": players[split:],
	})
}

func (s *Server) getPopularCategories(c *gin.Context) {
	ctx, cancel := s.ctx(c)
	defer cancel()

	categories, err := s.client.PopularCategories(ctx)
	if err != nil {
		s.log.Warn("popular_categories_fetch_failed", "error", err)
		c.JSON(http.StatusOK, gin.H{"categories": []models.PopularCategory{}, "stale": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

func (s *Server) getRecentGames(c *gin.Context) {
	user := s.handle.Current()
	if user == nil {
		c.JSON(http.StatusNotFound, errorBody("no_session", "no user is signed in"))
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	games, err := s.client.RecentGames(ctx, user.UserID)
	if err != nil {
		s.log.Warn("recent_games_fetch_failed", "user_id", user.UserID, "error", err)
		c.JSON(http.StatusOK, gin.H{"games": []models.GameSession{}, "stale": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"games": games})
}

func (s *Server) usernameAvailable(c *gin.Context) {
	username := c.Param("username")
	if err := security.ValidateUsername(username); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("invalid_username", err.Error()))
		return
	}

	ctx, cancel := s.ctx(c)
	defer cancel()

	available, err := s.client.CheckUsername(ctx, username)
	if err != nil {
		c.JSON(http.StatusBadGateway, errorBody("backend_unavailable", err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"username": username, "available": available})
}

func (s *Server) setLastProfile(p *models.ProfileData) {
	s.mu.Lock()
	s.lastProfile = p
	s.mu.Unlock()
}

func (s *Server) getLastProfile() *models.ProfileData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastProfile
}

func intQuery(c *gin.Context, key string, def int) int {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
