package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"finance-tracker/internal/domain"
	"finance-tracker/internal/repository"
)

const defaultDirectoryTimeout = 3 * time.Second

// AuthService coordina registro, login y perfil del usuario autenticado.
type AuthService struct {
	logger      *zap.Logger
	users       repository.UserRepository
	hasher      PasswordHasher
	tokens      *JWTService
	limiter     LoginLimiter
	timeout     time.Duration
	dummyDigest string
}

func NewAuthService(
	logger *zap.Logger,
	users repository.UserRepository,
	hasher PasswordHasher,
	tokens *JWTService,
	limiter LoginLimiter,
	timeout time.Duration,
) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if hasher == nil {
		hasher = NewArgon2idHasher()
	}
	if timeout <= 0 {
		timeout = defaultDirectoryTimeout
	}
	// Digest de relleno: un username inexistente paga el mismo costo de verificacion.
	dummy, err := hasher.Hash("finance-tracker-dummy-password")
	if err != nil {
		logger.Warn("dummy digest unavailable", zap.Error(err))
	}
	return &AuthService{
		logger:      logger,
		users:       users,
		hasher:      hasher,
		tokens:      tokens,
		limiter:     limiter,
		timeout:     timeout,
		dummyDigest: dummy,
	}
}

type RegisterInput struct {
	Name     string
	Username string
	Phone    string
	Password string
}

// UpdateInput contiene los campos mutables del perfil; nil significa "sin cambios".
type UpdateInput struct {
	Name  *string
	Phone *string
}

type LoginResult struct {
	Tokens TokenPair
	User   domain.PublicUser
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (domain.PublicUser, error) {
	if s.users == nil {
		return domain.PublicUser{}, errors.New("auth service not configured")
	}

	fields := registerFields{
		Name:     strings.TrimSpace(input.Name),
		Username: normalizeUsername(input.Username),
		Phone:    strings.TrimSpace(input.Phone),
		Password: input.Password,
	}
	if err := validateStruct(fields); err != nil {
		return domain.PublicUser{}, err
	}

	if _, err := s.getByUsername(ctx, fields.Username); err == nil {
		return domain.PublicUser{}, &ConflictError{Field: "username"}
	} else if !isNotFound(err) {
		return domain.PublicUser{}, directoryError("lookup username", err)
	}
	if _, err := s.getByPhone(ctx, fields.Phone); err == nil {
		return domain.PublicUser{}, &ConflictError{Field: "phone"}
	} else if !isNotFound(err) {
		return domain.PublicUser{}, directoryError("lookup phone", err)
	}

	digest, err := s.hasher.Hash(fields.Password)
	if err != nil {
		return domain.PublicUser{}, fmt.Errorf("hash password: %w", err)
	}

	dctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	created, err := s.users.Create(dctx, domain.User{
		Name:         fields.Name,
		Username:     fields.Username,
		Phone:        fields.Phone,
		PasswordHash: digest,
	})
	if err != nil {
		if conflict := asConflict(err); conflict != nil {
			return domain.PublicUser{}, conflict
		}
		return domain.PublicUser{}, directoryError("create user", err)
	}
	return created.Public(), nil
}

// Login responde con ErrInvalidCredentials tanto para username desconocido como para password incorrecta.
func (s *AuthService) Login(ctx context.Context, username, password string) (LoginResult, error) {
	if s.users == nil || s.tokens == nil {
		return LoginResult{}, errors.New("auth service not configured")
	}

	key := normalizeUsername(username)
	if key == "" || password == "" {
		return LoginResult{}, ErrInvalidCredentials
	}
	if s.limiter != nil && !s.limiter.Allow(ctx, key) {
		return LoginResult{}, ErrRateLimited
	}

	user, err := s.getByUsername(ctx, key)
	if err != nil {
		if isNotFound(err) {
			_, _ = s.hasher.Verify(password, s.dummyDigest)
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, directoryError("lookup username", err)
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		s.logger.Warn("stored digest unreadable", zap.String("user_id", user.ID), zap.Error(err))
		return LoginResult{}, ErrInvalidCredentials
	}
	if !ok {
		return LoginResult{}, ErrInvalidCredentials
	}

	if s.limiter != nil {
		s.limiter.Reset(ctx, key)
	}
	if s.hasher.NeedsUpgrade(user.PasswordHash) {
		s.upgradeDigest(ctx, user, password)
	}

	pair, err := s.tokens.GeneratePair(ctx, user)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue tokens: %w", err)
	}
	return LoginResult{Tokens: pair, User: user.Public()}, nil
}

// Refresh rota el refresh token y vuelve a resolver al usuario en el directorio.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (LoginResult, error) {
	if s.tokens == nil {
		return LoginResult{}, errors.New("auth service not configured")
	}
	subject, err := s.tokens.ConsumeRefresh(ctx, refreshToken)
	if err != nil {
		return LoginResult{}, err
	}
	user, err := s.ResolveIdentity(ctx, subject)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return LoginResult{}, ErrJWTInvalid
		}
		return LoginResult{}, err
	}
	pair, err := s.tokens.GeneratePair(ctx, user)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue tokens: %w", err)
	}
	return LoginResult{Tokens: pair, User: user.Public()}, nil
}

func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if s.tokens == nil {
		return errors.New("auth service not configured")
	}
	return s.tokens.RevokeRefresh(ctx, refreshToken)
}

// ResolveIdentity busca el subject de un token en el directorio.
func (s *AuthService) ResolveIdentity(ctx context.Context, subject string) (domain.User, error) {
	if s.users == nil {
		return domain.User{}, errors.New("auth service not configured")
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return domain.User{}, ErrUserNotFound
	}
	dctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	user, err := s.users.GetByID(dctx, subject)
	if err != nil {
		if isNotFound(err) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, directoryError("lookup id", err)
	}
	return user, nil
}

func (s *AuthService) GetCurrentUser(identity domain.User) (domain.PublicUser, error) {
	if identity.ID == "" {
		return domain.PublicUser{}, ErrUserNotFound
	}
	return identity.Public(), nil
}

func (s *AuthService) UpdateCurrentUser(ctx context.Context, identity domain.User, input UpdateInput) (domain.PublicUser, error) {
	if s.users == nil {
		return domain.PublicUser{}, errors.New("auth service not configured")
	}
	if identity.ID == "" {
		return domain.PublicUser{}, ErrUserNotFound
	}
	if input.Name == nil && input.Phone == nil {
		return domain.PublicUser{}, newValidationError("body", "no data provided for update")
	}

	fields := updateFields{
		Name:  trimmed(input.Name),
		Phone: trimmed(input.Phone),
	}
	if err := validateStruct(fields); err != nil {
		return domain.PublicUser{}, err
	}

	upd := domain.UserUpdate{Name: fields.Name}
	if fields.Phone != nil && *fields.Phone != identity.Phone {
		owner, err := s.getByPhone(ctx, *fields.Phone)
		switch {
		case err == nil && owner.ID != identity.ID:
			return domain.PublicUser{}, &ConflictError{Field: "phone"}
		case err != nil && !isNotFound(err):
			return domain.PublicUser{}, directoryError("lookup phone", err)
		}
		upd.Phone = fields.Phone
	}
	if upd.Empty() {
		return identity.Public(), nil
	}

	dctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	updated, err := s.users.Update(dctx, identity.ID, upd)
	if err != nil {
		if conflict := asConflict(err); conflict != nil {
			return domain.PublicUser{}, conflict
		}
		if isNotFound(err) {
			return domain.PublicUser{}, ErrUserNotFound
		}
		return domain.PublicUser{}, directoryError("update user", err)
	}
	return updated.Public(), nil
}

// upgradeDigest reemplaza digests heredados; un fallo no bloquea el login.
func (s *AuthService) upgradeDigest(ctx context.Context, user domain.User, password string) {
	digest, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.Warn("rehash failed", zap.String("user_id", user.ID), zap.Error(err))
		return
	}
	dctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.users.Update(dctx, user.ID, domain.UserUpdate{PasswordHash: &digest}); err != nil {
		s.logger.Warn("persist rehash failed", zap.String("user_id", user.ID), zap.Error(err))
		return
	}
	s.logger.Info("password digest upgraded", zap.String("user_id", user.ID))
}

func (s *AuthService) getByUsername(ctx context.Context, username string) (domain.User, error) {
	dctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.users.GetByUsername(dctx, username)
}

func (s *AuthService) getByPhone(ctx context.Context, phone string) (domain.User, error) {
	dctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.users.GetByPhone(dctx, phone)
}

func asConflict(err error) *ConflictError {
	var dup *repository.DuplicateError
	if errors.As(err, &dup) {
		return &ConflictError{Field: dup.Field}
	}
	if errors.Is(err, repository.ErrDuplicate) {
		return &ConflictError{}
	}
	return nil
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	return &t
}
