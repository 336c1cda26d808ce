package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"finance-tracker/internal/domain"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

var signingMethods = map[string]*jwt.SigningMethodHMAC{
	"HS256": jwt.SigningMethodHS256,
	"HS384": jwt.SigningMethodHS384,
	"HS512": jwt.SigningMethodHS512,
}

// JWTConfig agrupa los parametros inmutables del codec de tokens.
type JWTConfig struct {
	Secret     string
	Algorithm  string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Store      RefreshTokenStore
}

// JWTService emite y valida tokens JWT.
type JWTService struct {
	secret     []byte
	method     *jwt.SigningMethodHMAC
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
	store      RefreshTokenStore
	now        func() time.Time
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

type Claims struct {
	UserID    string `json:"uid"`
	Username  string `json:"username,omitempty"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

var (
	ErrJWTInvalid = errors.New("jwt invalid")
	ErrJWTExpired = errors.New("jwt expired")
)

// NewJWTService solo acepta algoritmos HMAC; cualquier otro nombre es un error de arranque.
func NewJWTService(cfg JWTConfig) (*JWTService, error) {
	alg := strings.ToUpper(strings.TrimSpace(cfg.Algorithm))
	if alg == "" {
		alg = jwt.SigningMethodHS256.Alg()
	}
	method, ok := signingMethods[alg]
	if !ok {
		return nil, fmt.Errorf("jwt: unsupported signing algorithm %q", cfg.Algorithm)
	}
	accessTTL := cfg.AccessTTL
	if accessTTL <= 0 {
		accessTTL = 30 * time.Minute
	}
	refreshTTL := cfg.RefreshTTL
	if refreshTTL <= 0 {
		refreshTTL = defaultRefreshTTL
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = "finance-tracker"
	}
	store := cfg.Store
	if store == nil {
		store = NewMemoryRefreshTokenStore()
	}
	return &JWTService{
		secret:     []byte(cfg.Secret),
		method:     method,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		issuer:     issuer,
		store:      store,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// Issue firma un access token para subject con la vigencia indicada.
func (s *JWTService) Issue(subject string, ttl time.Duration) (string, error) {
	if len(s.secret) == 0 || strings.TrimSpace(subject) == "" || ttl <= 0 {
		return "", ErrJWTInvalid
	}
	return s.signToken(subject, "", "", tokenTypeAccess, s.now(), ttl)
}

// Verify devuelve el subject de un access token valido.
func (s *JWTService) Verify(token string) (string, error) {
	claims, err := s.ParseAccessToken(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (s *JWTService) AccessTTL() time.Duration { return s.accessTTL }

func (s *JWTService) GeneratePair(ctx context.Context, user domain.User) (TokenPair, error) {
	if len(s.secret) == 0 || strings.TrimSpace(user.ID) == "" {
		return TokenPair{}, ErrJWTInvalid
	}
	now := s.now()
	access, err := s.signToken(user.ID, user.Username, "", tokenTypeAccess, now, s.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	jti := uuid.NewString()
	refresh, err := s.signToken(user.ID, user.Username, jti, tokenTypeRefresh, now, s.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.store.Save(ctx, jti, user.ID, s.refreshTTL); err != nil {
		return TokenPair{}, storeError("save refresh token", err)
	}
	return TokenPair{
		AccessToken:  access,
		TokenType:    "bearer",
		RefreshToken: refresh,
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}, nil
}

// ConsumeRefresh valida un refresh token, canjea su jti y devuelve el subject.
// Un jti ya canjeado o revocado es invalido, tambien bajo peticiones concurrentes.
func (s *JWTService) ConsumeRefresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.parseRefresh(refreshToken)
	if err != nil {
		return "", err
	}
	owner, ok, err := s.store.Consume(ctx, claims.ID)
	if err != nil {
		return "", storeError("consume refresh token", err)
	}
	if !ok || owner != claims.Subject {
		return "", ErrJWTInvalid
	}
	return claims.Subject, nil
}

func (s *JWTService) RevokeRefresh(ctx context.Context, refreshToken string) error {
	claims, err := s.parseRefresh(refreshToken)
	if err != nil {
		return err
	}
	if err := s.store.Revoke(ctx, claims.ID); err != nil {
		return storeError("revoke refresh token", err)
	}
	return nil
}

func (s *JWTService) ParseAccessToken(accessToken string) (Claims, error) {
	claims, err := s.parseToken(accessToken)
	if err != nil {
		return Claims{}, err
	}
	if claims.TokenType != tokenTypeAccess {
		return Claims{}, ErrJWTInvalid
	}
	return claims, nil
}

func (s *JWTService) parseRefresh(refreshToken string) (Claims, error) {
	claims, err := s.parseToken(refreshToken)
	if err != nil {
		return Claims{}, err
	}
	if claims.TokenType != tokenTypeRefresh || claims.ID == "" {
		return Claims{}, ErrJWTInvalid
	}
	return claims, nil
}

func (s *JWTService) signToken(subject, username, jti, tokenType string, now time.Time, ttl time.Duration) (string, error) {
	claims := Claims{
		UserID:    subject,
		Username:  username,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    s.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(s.method, claims)
	return token.SignedString(s.secret)
}

func (s *JWTService) parseToken(tokenString string) (Claims, error) {
	if len(s.secret) == 0 || strings.TrimSpace(tokenString) == "" {
		return Claims{}, ErrJWTInvalid
	}
	var claims Claims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	_, err := parser.ParseWithClaims(tokenString, &claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrJWTExpired
		}
		return Claims{}, ErrJWTInvalid
	}
	if !validSubject(claims) {
		return Claims{}, ErrJWTInvalid
	}
	return claims, nil
}

// storeError marca como transitorio cualquier fallo del store de sesiones.
func storeError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrTransient, err)
}

func validSubject(claims Claims) bool {
	if strings.TrimSpace(claims.UserID) == "" || strings.TrimSpace(claims.Subject) == "" {
		return false
	}
	return claims.Subject == claims.UserID
}
