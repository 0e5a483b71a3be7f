// Package services contains server-side business logic. This file implements
// AuthService: credential validation, login, refresh-token rotation, logout
// and the denylist check consulted by the authentication gate.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/cryptox"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// LogoutMessage is returned by a successful Logout.
const LogoutMessage = "Logged out successfully"

// MinPasswordLength is the shortest password Register accepts.
const MinPasswordLength = 8

// LoginResult is the outcome of a successful Login, Register or CreateUser.
type LoginResult struct {
	User   *models.User
	Tokens *auth.TokenPair
}

// AuthService owns the token lifecycle. It holds no token state itself; the
// repositories are the single source of truth.
type AuthService struct {
	repomanager repomanager.RepositoryManager
	issuer      *auth.Issuer
	hasher      *cryptox.Argon2
	lookup      *cryptox.LookupHasher
	metrics     *metrics.Metrics
	log         logging.Logger

	refreshTTL   time.Duration
	maxSessions  int
	storeTimeout time.Duration
	now          func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthService wires the service. Lifetimes, the session cap and the store
// timeout come from cfg.
func NewAuthService(
	m repomanager.RepositoryManager,
	issuer *auth.Issuer,
	hasher *cryptox.Argon2,
	lookup *cryptox.LookupHasher,
	mtr *metrics.Metrics,
	log logging.Logger,
	cfg *config.Config,
) *AuthService {
	return &AuthService{
		repomanager:  m,
		issuer:       issuer,
		hasher:       hasher,
		lookup:       lookup,
		metrics:      mtr,
		log:          log.With("module", "auth"),
		refreshTTL:   cfg.RefreshTokenValidityDuration,
		maxSessions:  cfg.MaxSessions,
		storeTimeout: cfg.StoreTimeout,
		now:          time.Now,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Validate checks email/password and returns the matching active identity,
// or nil when the credentials are not acceptable for any reason. An error is
// returned only when the identity store itself fails.
func (s *AuthService) Validate(ctx context.Context, email, password string) (*models.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, nil
	}

	ctx, cancel := dbx.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	user, err := s.repomanager.Users(s.repomanager.DB()).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.burnVerify(password)
			return nil, nil
		}
		return nil, err
	}

	if user.PasswordHash == nil {
		s.burnVerify(password)
		return nil, nil
	}

	ok, err := s.hasher.Verify(password, *user.PasswordHash)
	if err != nil {
		s.log.Warn(ctx, "stored password hash cannot be verified", "user_id", user.ID, "error", err)
		return nil, nil
	}
	if !ok || !user.IsActive {
		return nil, nil
	}
	return user, nil
}

// burnVerify spends one slow-hash verification so that unknown accounts take
// as long to reject as wrong passwords.
func (s *AuthService) burnVerify(password string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash(uuid.NewString())
	})
	if s.dummyHash != "" {
		_, _ = s.hasher.Verify(password, s.dummyHash)
	}
}

// Login validates the credentials, issues a token pair and stores the new
// refresh token under the session cap.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.Validate(ctx, email, password)
	if err != nil {
		s.metrics.Login.WithLabelValues(metrics.ResultError).Inc()
		s.log.Error(ctx, "login: identity lookup failed", "error", err)
		return nil, common.ErrorInternal
	}
	if user == nil {
		s.metrics.Login.WithLabelValues(metrics.ResultUnauthorized).Inc()
		s.log.Warn(ctx, "login rejected")
		return nil, common.ErrorUnauthorized
	}

	pair, err := s.issueAndStore(ctx, user, nil)
	if err != nil {
		s.metrics.Login.WithLabelValues(metrics.ResultError).Inc()
		s.log.Error(ctx, "login: storing session failed", "user_id", user.ID, "error", err)
		return nil, common.ErrorInternal
	}

	s.metrics.Login.WithLabelValues(metrics.ResultSuccess).Inc()
	s.log.Info(ctx, "user logged in", "user_id", user.ID)
	return &LoginResult{User: user, Tokens: pair}, nil
}

// Refresh exchanges a refresh token for a new pair. The presented token is
// revoked in the same transaction that stores its successor; of any number
// of concurrent calls with the same token exactly one succeeds.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error) {
	pair, err := s.refresh(ctx, refreshToken)
	switch {
	case err == nil:
		s.metrics.Refresh.WithLabelValues(metrics.ResultSuccess).Inc()
	case errors.Is(err, common.ErrorUnauthorized):
		s.metrics.Refresh.WithLabelValues(metrics.ResultUnauthorized).Inc()
	default:
		s.metrics.Refresh.WithLabelValues(metrics.ResultError).Inc()
		s.log.Error(ctx, "refresh failed", "error", err)
		err = common.ErrorInternal
	}
	return pair, err
}

func (s *AuthService) refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error) {
	if refreshToken == "" {
		return nil, common.ErrInvalidRefreshToken
	}

	record, err := s.findRecord(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	user, err := s.findUser(ctx, record.UserID)
	if err != nil {
		return nil, err
	}

	pair, err := s.issueAndStore(ctx, user, record)
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "refresh token rotated", "user_id", user.ID)
	return pair, nil
}

// findRecord returns the active record whose hash matches plaintext. Candidates
// are narrowed by the lookup key and confirmed with the slow hash.
func (s *AuthService) findRecord(ctx context.Context, plaintext string) (*models.RefreshToken, error) {
	ctx, cancel := dbx.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	candidates, err := s.repomanager.RefreshTokens(s.repomanager.DB()).
		FindActiveByLookup(ctx, s.lookup.Sum(plaintext), s.now())
	if err != nil {
		return nil, err
	}

	for _, c := range candidates {
		ok, err := s.hasher.Verify(plaintext, c.TokenHash)
		if err != nil {
			s.log.Warn(ctx, "stored refresh token hash cannot be verified", "token_id", c.ID, "error", err)
			continue
		}
		if ok {
			return c, nil
		}
	}
	return nil, common.ErrInvalidRefreshToken
}

func (s *AuthService) findUser(ctx context.Context, userID string) (*models.User, error) {
	ctx, cancel := dbx.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	user, err := s.repomanager.Users(s.repomanager.DB()).FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, common.ErrorUnauthorized
	}
	return user, nil
}

// issueAndStore mints a pair for user and persists its refresh token. When
// rotated is set, that record is revoked in the same transaction; losing the
// revocation race aborts the whole unit of work.
func (s *AuthService) issueAndStore(ctx context.Context, user *models.User, rotated *models.RefreshToken) (*auth.TokenPair, error) {
	pair, err := s.issuer.Issue(user.ID, user.Role)
	if err != nil {
		return nil, err
	}

	record, err := s.newRecord(user.ID, pair.RefreshToken)
	if err != nil {
		return nil, err
	}

	ctx, cancel := dbx.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	err = s.repomanager.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if rotated != nil {
			won, err := s.repomanager.RefreshTokens(tx).MarkRevoked(ctx, rotated.ID)
			if err != nil {
				return err
			}
			if !won {
				return common.ErrInvalidRefreshToken
			}
		}
		return s.persist(ctx, tx, record)
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// newRecord hashes plaintext outside of any transaction; argon2 is slow and
// must not hold locks.
func (s *AuthService) newRecord(userID, plaintext string) (*models.RefreshToken, error) {
	hash, err := s.hasher.Hash(plaintext)
	if err != nil {
		return nil, err
	}
	now := s.now()
	return &models.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: hash,
		LookupKey: s.lookup.Sum(plaintext),
		CreatedAt: now,
		ExpiresAt: now.Add(s.refreshTTL),
	}, nil
}

// persist stores record under the per-user cap: stale records of the user
// are dropped, and when the cap is reached the oldest active one is evicted.
func (s *AuthService) persist(ctx context.Context, tx dbx.DBTX, record *models.RefreshToken) error {
	repo := s.repomanager.RefreshTokens(tx)
	now := record.CreatedAt

	if _, err := repo.DeleteStaleForUser(ctx, record.UserID, now); err != nil {
		return err
	}

	active, err := repo.CountActiveForUser(ctx, record.UserID, now)
	if err != nil {
		return err
	}
	if active >= s.maxSessions {
		if _, err := repo.DeleteOldestActiveForUser(ctx, record.UserID, now); err != nil {
			return err
		}
	}

	return repo.Create(ctx, record)
}

// Logout revokes every refresh token of userID and denylists accessToken
// until its own expiry.
func (s *AuthService) Logout(ctx context.Context, userID, accessToken string) (string, error) {
	if userID == "" || accessToken == "" {
		return "", fmt.Errorf("%w: user id and access token are required", common.ErrorBadRequest)
	}

	expiresAt, err := auth.ExpiresAt(accessToken)
	if err != nil {
		return "", fmt.Errorf("%w: access token carries no expiry", common.ErrorBadRequest)
	}

	ctx, cancel := dbx.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	var revoked int64
	err = s.repomanager.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		n, err := s.repomanager.RefreshTokens(tx).RevokeAllForUser(ctx, userID)
		if err != nil {
			return err
		}
		revoked = n
		return s.repomanager.Blacklist(tx).Add(ctx, &models.BlacklistedToken{
			Token:     accessToken,
			UserID:    userID,
			ExpiresAt: expiresAt,
		})
	})
	if err != nil {
		s.log.Error(ctx, "logout failed", "user_id", userID, "error", err)
		return "", common.ErrorInternal
	}

	s.metrics.Logout.Inc()
	s.log.Info(ctx, "user logged out", "user_id", userID, "revoked_sessions", revoked)
	return LogoutMessage, nil
}

// IsTokenBlacklisted reports whether token was revoked by a logout. A store
// failure is logged and reported as false: the check fails open.
func (s *AuthService) IsTokenBlacklisted(ctx context.Context, token string) bool {
	if token == "" {
		return false
	}

	ctx, cancel := dbx.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	found, err := s.repomanager.Blacklist(s.repomanager.DB()).Exists(ctx, token)
	if err != nil {
		s.metrics.BlacklistCheckFailures.Inc()
		s.log.Warn(ctx, "denylist check failed, treating token as valid", "error", err)
		return false
	}
	return found
}

// Register creates an EDITOR account and opens its first session.
func (s *AuthService) Register(ctx context.Context, email, password string) (*LoginResult, error) {
	if normalizeEmail(email) == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", common.ErrorBadRequest)
	}
	if len(password) < MinPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters long", common.ErrorBadRequest, MinPasswordLength)
	}

	res, err := s.createUser(ctx, email, password, models.RoleEditor)
	if err != nil {
		return nil, err
	}
	s.log.Info(ctx, "user registered", "user_id", res.User.ID)
	return res, nil
}

// CreateUser adds an identity with any role and opens its first session. It
// backs the operator's seed-user command.
func (s *AuthService) CreateUser(ctx context.Context, email, password, role string) (*LoginResult, error) {
	if normalizeEmail(email) == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", common.ErrorBadRequest)
	}
	if !models.ValidRole(role) {
		return nil, fmt.Errorf("%w: unknown role %q", common.ErrorBadRequest, role)
	}

	res, err := s.createUser(ctx, email, password, role)
	if err != nil {
		return nil, err
	}
	s.log.Info(ctx, "user created", "user_id", res.User.ID, "role", role)
	return res, nil
}

// createUser stores the identity and issues its token pair through the
// session store, so the new session counts against the cap.
func (s *AuthService) createUser(ctx context.Context, email, password, role string) (*LoginResult, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.log.Error(ctx, "hashing password failed", "error", err)
		return nil, common.ErrorInternal
	}

	createCtx, cancel := dbx.WithTimeout(ctx, s.storeTimeout)
	user, err := s.repomanager.Users(s.repomanager.DB()).Create(createCtx, &models.User{
		Email:        normalizeEmail(email),
		PasswordHash: &hash,
		Role:         role,
		IsActive:     true,
	})
	cancel()
	if err != nil {
		if errors.Is(err, common.ErrorBadRequest) {
			return nil, err
		}
		s.log.Error(ctx, "creating user failed", "error", err)
		return nil, common.ErrorInternal
	}

	pair, err := s.issueAndStore(ctx, user, nil)
	if err != nil {
		s.log.Error(ctx, "storing first session failed", "user_id", user.ID, "error", err)
		return nil, common.ErrorInternal
	}
	return &LoginResult{User: user, Tokens: pair}, nil
}
