package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/PaulBabatuyi/filesync/internal/models"
	"go.uber.org/zap"
)

// AuthService registers users and checks their credentials. It issues no
// tokens; a successful login only returns the user's identity.
type AuthService struct {
	users  UserStore
	hasher PasswordHasher
	logger *zap.Logger

	dummyMu   sync.Mutex
	dummyHash string
}

func NewAuthService(users UserStore, hasher PasswordHasher, logger *zap.Logger) *AuthService {
	return &AuthService{users: users, hasher: hasher, logger: logger}
}

// Register creates a user. A taken username yields models.ErrDuplicateUsername.
func (a *AuthService) Register(ctx context.Context, username, password string) (*models.User, error) {
	if err := ValidateCredentials(username, password); err != nil {
		return nil, err
	}

	hash, err := a.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u, err := a.users.InsertUser(ctx, username, hash)
	if err != nil {
		if errors.Is(err, models.ErrDuplicate) {
			a.logger.Info("registration rejected, username taken", zap.String("username", username))
		}
		return nil, err
	}
	a.logger.Info("user registered", zap.Int64("user_id", u.ID), zap.String("username", u.Username))
	return u, nil
}

// Login returns the user whose credentials match. Unknown users and wrong
// passwords both yield models.ErrAuth.
func (a *AuthService) Login(ctx context.Context, username, password string) (*models.User, error) {
	if username == "" || password == "" {
		return nil, models.Validationf("username and password required")
	}

	u, err := a.users.FindUserByUsername(ctx, username)
	if errors.Is(err, models.ErrNotFound) {
		// burn one comparison so unknown users cost the same as known ones
		if _, verr := a.hasher.Verify(password, a.dummy()); verr != nil {
			a.logger.Warn("dummy hash comparison failed, login timing not equalized", zap.Error(verr))
		}
		return nil, fmt.Errorf("%w: invalid username or password", models.ErrAuth)
	}
	if err != nil {
		return nil, err
	}

	ok, err := a.hasher.Verify(password, u.SecretHash)
	if err != nil {
		a.logger.Error("stored hash unreadable", zap.Int64("user_id", u.ID), zap.Error(err))
		return nil, fmt.Errorf("%w: invalid username or password", models.ErrAuth)
	}
	if !ok {
		return nil, fmt.Errorf("%w: invalid username or password", models.ErrAuth)
	}
	return u, nil
}

// Identify resolves a caller id to a user. Ids with no user yield models.ErrAuth.
func (a *AuthService) Identify(ctx context.Context, id int64) (*models.User, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: caller identity required", models.ErrAuth)
	}
	u, err := a.users.GetUser(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("%w: unknown caller", models.ErrAuth)
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// EnsureDefaultUser creates username/password when no user exists yet.
func (a *AuthService) EnsureDefaultUser(ctx context.Context, username, password string) error {
	n, err := a.users.CountUsers(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if _, err := a.Register(ctx, username, password); err != nil && !errors.Is(err, models.ErrDuplicate) {
		return fmt.Errorf("create default user: %w", err)
	}
	a.logger.Warn("no users found, created default account", zap.String("username", username))
	return nil
}

// dummy returns the hash unknown-user logins are compared against. A failed
// attempt is retried on the next call.
func (a *AuthService) dummy() string {
	a.dummyMu.Lock()
	defer a.dummyMu.Unlock()
	if a.dummyHash == "" {
		h, err := a.hasher.Hash("filesync-dummy-secret")
		if err != nil {
			a.logger.Error("dummy hash failed", zap.Error(err))
			return ""
		}
		a.dummyHash = h
	}
	return a.dummyHash
}
