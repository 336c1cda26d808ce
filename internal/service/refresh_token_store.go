package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisOpTimeout    = 500 * time.Millisecond
	defaultRefreshTTL = 30 * 24 * time.Hour
)

var errEmptyJTI = errors.New("refresh token without jti")

// RefreshTokenStore registra las sesiones de refresh vigentes, indexadas por jti.
// Cada jti se canjea como maximo una vez.
type RefreshTokenStore interface {
	// Save asocia jti con el usuario dueño de la sesion.
	Save(ctx context.Context, jti, userID string, ttl time.Duration) error
	// Consume borra jti en una sola operacion y devuelve su dueño.
	// ok es false si el jti no existe, ya fue canjeado o vencio.
	Consume(ctx context.Context, jti string) (userID string, ok bool, err error)
	// Revoke borra jti sin devolverlo; un jti desconocido no es error.
	Revoke(ctx context.Context, jti string) error
}

type refreshSession struct {
	userID  string
	expires time.Time
}

type memoryRefreshTokenStore struct {
	mu        sync.Mutex
	sessions  map[string]refreshSession
	now       func() time.Time
	lastSweep time.Time
}

func NewMemoryRefreshTokenStore() RefreshTokenStore {
	return &memoryRefreshTokenStore{
		sessions: make(map[string]refreshSession),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *memoryRefreshTokenStore) Save(_ context.Context, jti, userID string, ttl time.Duration) error {
	if strings.TrimSpace(jti) == "" {
		return errEmptyJTI
	}
	if ttl <= 0 {
		ttl = defaultRefreshTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.dropExpired(now)
	s.sessions[jti] = refreshSession{userID: userID, expires: now.Add(ttl)}
	return nil
}

func (s *memoryRefreshTokenStore) Consume(_ context.Context, jti string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[jti]
	if !ok {
		return "", false, nil
	}
	delete(s.sessions, jti)
	if !s.now().Before(session.expires) {
		return "", false, nil
	}
	return session.userID, true, nil
}

func (s *memoryRefreshTokenStore) Revoke(_ context.Context, jti string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, jti)
	return nil
}

// dropExpired recorre el mapa como mucho una vez por minuto. Requiere s.mu.
func (s *memoryRefreshTokenStore) dropExpired(now time.Time) {
	if now.Sub(s.lastSweep) < time.Minute {
		return
	}
	s.lastSweep = now
	for jti, session := range s.sessions {
		if !now.Before(session.expires) {
			delete(s.sessions, jti)
		}
	}
}

// redisSessionClient es el subconjunto de *redis.Client que usa el store.
type redisSessionClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	GetDel(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// redisRefreshTokenStore guarda refresh:<jti> -> userID con TTL; GETDEL hace atomico el canje.
type redisRefreshTokenStore struct {
	client redisSessionClient
	prefix string
}

func NewRedisRefreshTokenStore(client *redis.Client) RefreshTokenStore {
	if client == nil {
		return nil
	}
	return &redisRefreshTokenStore{client: client, prefix: "finance:refresh:"}
}

func (s *redisRefreshTokenStore) Save(ctx context.Context, jti, userID string, ttl time.Duration) error {
	if strings.TrimSpace(jti) == "" {
		return errEmptyJTI
	}
	if ttl <= 0 {
		ttl = defaultRefreshTTL
	}
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	return s.client.Set(ctx, s.prefix+jti, userID, ttl).Err()
}

func (s *redisRefreshTokenStore) Consume(ctx context.Context, jti string) (string, bool, error) {
	if strings.TrimSpace(jti) == "" {
		return "", false, nil
	}
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	userID, err := s.client.GetDel(ctx, s.prefix+jti).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return userID, true, nil
}

func (s *redisRefreshTokenStore) Revoke(ctx context.Context, jti string) error {
	if strings.TrimSpace(jti) == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	return s.client.Del(ctx, s.prefix+jti).Err()
}
