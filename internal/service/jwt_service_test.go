package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"finance-tracker/internal/domain"
)

func newTestJWTService(t *testing.T, secret, alg string) *JWTService {
	t.Helper()
	svc, err := NewJWTService(JWTConfig{
		Secret:     secret,
		Algorithm:  alg,
		Issuer:     "finance-tracker",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 30 * time.Minute,
		Store:      NewMemoryRefreshTokenStore(),
	})
	if err != nil {
		t.Fatalf("new jwt service: %v", err)
	}
	return svc
}

func signRaw(t *testing.T, method jwt.SigningMethod, key any, claims Claims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func accessClaims(issuer string, now time.Time) Claims {
	return Claims{
		UserID:    "u1",
		TokenType: tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   "u1",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(10 * time.Minute)),
		},
	}
}

func TestJWTService_IssueVerify(t *testing.T) {
	svc := newTestJWTService(t, "secret", "HS256")

	token, err := svc.Issue("u1", time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	subject, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if subject != "u1" {
		t.Fatalf("expected subject u1, got %q", subject)
	}
}

func TestJWTService_ExpiryUsesClock(t *testing.T) {
	svc := newTestJWTService(t, "secret", "HS256")
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	token, err := svc.Issue("u1", time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	now = now.Add(59 * time.Second)
	if _, err := svc.Verify(token); err != nil {
		t.Fatalf("expected token valid before expiry, got %v", err)
	}

	now = now.Add(2 * time.Second)
	if _, err := svc.Verify(token); !errors.Is(err, ErrJWTExpired) {
		t.Fatalf("expected ErrJWTExpired after expiry, got %v", err)
	}
}

func TestJWTService_GenerateParseAccess(t *testing.T) {
	svc := newTestJWTService(t, "secret", "HS384")
	user := domain.User{ID: "u1", Username: "johndoe", CreatedAt: time.Now().UTC()}

	pair, err := svc.GeneratePair(context.Background(), user)
	if err != nil {
		t.Fatalf("generate pair: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("expected tokens")
	}
	if pair.TokenType != "bearer" || pair.ExpiresIn != int64((15*time.Minute).Seconds()) {
		t.Fatalf("unexpected pair metadata: %+v", pair)
	}

	claims, err := svc.ParseAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}
	if claims.UserID != "u1" || claims.Username != "johndoe" || claims.Subject != "u1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if !claims.ExpiresAt.After(claims.IssuedAt.Time) {
		t.Fatalf("expected exp after iat")
	}
}

func TestJWTService_RefreshRotation(t *testing.T) {
	ctx := context.Background()
	svc := newTestJWTService(t, "secret", "HS256")
	user := domain.User{ID: "u1", Username: "johndoe"}

	pair, err := svc.GeneratePair(ctx, user)
	if err != nil {
		t.Fatalf("generate pair: %v", err)
	}

	subject, err := svc.ConsumeRefresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("consume refresh: %v", err)
	}
	if subject != "u1" {
		t.Fatalf("expected subject u1, got %q", subject)
	}

	if _, err := svc.ConsumeRefresh(ctx, pair.RefreshToken); !errors.Is(err, ErrJWTInvalid) {
		t.Fatalf("expected consumed refresh token to be rejected, got %v", err)
	}
}

func TestJWTService_RevokeRefresh(t *testing.T) {
	ctx := context.Background()
	svc := newTestJWTService(t, "secret", "HS256")
	pair, err := svc.GeneratePair(ctx, domain.User{ID: "u1"})
	if err != nil {
		t.Fatalf("generate pair: %v", err)
	}

	if err := svc.RevokeRefresh(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("revoke refresh: %v", err)
	}
	if _, err := svc.ConsumeRefresh(ctx, pair.RefreshToken); err == nil {
		t.Fatalf("expected refresh to fail after revoke")
	}
	// El access token sigue siendo valido: no hay estado del lado servidor.
	if _, err := svc.ParseAccessToken(pair.AccessToken); err != nil {
		t.Fatalf("access token should stay valid, got %v", err)
	}
}

// slowSessionStore agrega latencia de red a cada operacion del store.
type slowSessionStore struct {
	RefreshTokenStore
	delay time.Duration
	err   error
}

func (s *slowSessionStore) Consume(ctx context.Context, jti string) (string, bool, error) {
	time.Sleep(s.delay)
	if s.err != nil {
		return "", false, s.err
	}
	return s.RefreshTokenStore.Consume(ctx, jti)
}

func (s *slowSessionStore) Revoke(ctx context.Context, jti string) error {
	if s.err != nil {
		return s.err
	}
	return s.RefreshTokenStore.Revoke(ctx, jti)
}

func TestJWTService_ConcurrentRefreshSingleWinner(t *testing.T) {
	ctx := context.Background()
	svc, err := NewJWTService(JWTConfig{
		Secret: "secret",
		Store:  &slowSessionStore{RefreshTokenStore: NewMemoryRefreshTokenStore(), delay: 5 * time.Millisecond},
	})
	if err != nil {
		t.Fatalf("new jwt service: %v", err)
	}
	pair, err := svc.GeneratePair(ctx, domain.User{ID: "u1"})
	if err != nil {
		t.Fatalf("generate pair: %v", err)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		winners  int
		rejected int
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ConsumeRefresh(ctx, pair.RefreshToken)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, ErrJWTInvalid):
				rejected++
			}
		}()
	}
	wg.Wait()
	if winners != 1 || rejected != 9 {
		t.Fatalf("expected 1 winner and 9 rejections, got %d and %d", winners, rejected)
	}
}

func TestJWTService_StoreFailureIsTransient(t *testing.T) {
	ctx := context.Background()
	store := &slowSessionStore{RefreshTokenStore: NewMemoryRefreshTokenStore()}
	svc, err := NewJWTService(JWTConfig{Secret: "secret", Store: store})
	if err != nil {
		t.Fatalf("new jwt service: %v", err)
	}
	pair, err := svc.GeneratePair(ctx, domain.User{ID: "u1"})
	if err != nil {
		t.Fatalf("generate pair: %v", err)
	}

	store.err = errors.New("redis: i/o timeout")
	if _, err := svc.ConsumeRefresh(ctx, pair.RefreshToken); !errors.Is(err, ErrTransient) || errors.Is(err, ErrJWTInvalid) {
		t.Fatalf("expected ErrTransient on store failure, got %v", err)
	}
	if err := svc.RevokeRefresh(ctx, pair.RefreshToken); !errors.Is(err, ErrTransient) {
		t.Fatalf("expected ErrTransient on revoke failure, got %v", err)
	}
}

func TestJWTService_RefreshOwnerMustMatchSubject(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryRefreshTokenStore()
	svc, err := NewJWTService(JWTConfig{Secret: "secret", Store: store})
	if err != nil {
		t.Fatalf("new jwt service: %v", err)
	}
	pair, err := svc.GeneratePair(ctx, domain.User{ID: "u1"})
	if err != nil {
		t.Fatalf("generate pair: %v", err)
	}
	claims, err := svc.parseRefresh(pair.RefreshToken)
	if err != nil {
		t.Fatalf("parse refresh: %v", err)
	}
	if err := store.Save(ctx, claims.ID, "u2", time.Minute); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := svc.ConsumeRefresh(ctx, pair.RefreshToken); !errors.Is(err, ErrJWTInvalid) {
		t.Fatalf("expected ErrJWTInvalid when session owner differs, got %v", err)
	}
}

func TestJWTService_RejectsEmptySecret(t *testing.T) {
	svc := newTestJWTService(t, "", "HS256")

	if _, err := svc.GeneratePair(context.Background(), domain.User{ID: "u1"}); !errors.Is(err, ErrJWTInvalid) {
		t.Fatalf("expected ErrJWTInvalid on empty secret, got %v", err)
	}
	if _, err := svc.Issue("u1", time.Minute); !errors.Is(err, ErrJWTInvalid) {
		t.Fatalf("expected ErrJWTInvalid on issue, got %v", err)
	}
}

func TestJWTService_RejectsUnsupportedAlgorithm(t *testing.T) {
	for _, alg := range []string{"RS256", "none", "ES256"} {
		if _, err := NewJWTService(JWTConfig{Secret: "secret", Algorithm: alg}); err == nil {
			t.Fatalf("expected error for algorithm %q", alg)
		}
	}
}

func TestJWTService_RejectsTokenTypeMismatch(t *testing.T) {
	ctx := context.Background()
	svc := newTestJWTService(t, "secret", "HS256")
	pair, err := svc.GeneratePair(ctx, domain.User{ID: "u1"})
	if err != nil {
		t.Fatalf("generate pair: %v", err)
	}

	if _, err := svc.ConsumeRefresh(ctx, pair.AccessToken); !errors.Is(err, ErrJWTInvalid) {
		t.Fatalf("expected ErrJWTInvalid for access token used as refresh, got %v", err)
	}
	if _, err := svc.Verify(pair.RefreshToken); !errors.Is(err, ErrJWTInvalid) {
		t.Fatalf("expected ErrJWTInvalid for refresh token used as access, got %v", err)
	}
}

func TestJWTService_RejectsForgedTokens(t *testing.T) {
	svc := newTestJWTService(t, "secret", "HS256")
	now := time.Now().UTC()

	mismatched := accessClaims("finance-tracker", now)
	mismatched.Subject = "u2"

	cases := []struct {
		name  string
		token string
	}{
		{"wrong issuer", signRaw(t, jwt.SigningMethodHS256, []byte("secret"), accessClaims("other-issuer", now))},
		{"wrong secret", signRaw(t, jwt.SigningMethodHS256, []byte("other"), accessClaims("finance-tracker", now))},
		{"other hmac variant", signRaw(t, jwt.SigningMethodHS512, []byte("secret"), accessClaims("finance-tracker", now))},
		{"alg none", signRaw(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, accessClaims("finance-tracker", now))},
		{"subject mismatch", signRaw(t, jwt.SigningMethodHS256, []byte("secret"), mismatched)},
		{"malformed", "not-a-jwt"},
		{"empty", "   "},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Verify(tc.token); !errors.Is(err, ErrJWTInvalid) {
				t.Fatalf("expected ErrJWTInvalid, got %v", err)
			}
		})
	}
}

func TestJWTService_RequiresExpiration(t *testing.T) {
	svc := newTestJWTService(t, "secret", "HS256")
	claims := accessClaims("finance-tracker", time.Now().UTC())
	claims.ExpiresAt = nil

	if _, err := svc.Verify(signRaw(t, jwt.SigningMethodHS256, []byte("secret"), claims)); !errors.Is(err, ErrJWTInvalid) {
		t.Fatalf("expected ErrJWTInvalid without exp, got %v", err)
	}
}
