package service

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// loginAttemptScript cuenta un intento solo si la clave no agoto el cupo, asi un
// atacante bloqueado no alarga la ventana. Devuelve 1 si admite y 0 si rechaza.
// KEYS[1] contador, ARGV[1] ventana en ms, ARGV[2] maximo de intentos.
const loginAttemptScript = `
local used = tonumber(redis.call("GET", KEYS[1]) or "0")
if used >= tonumber(ARGV[2]) then
  return 0
end
if redis.call("INCR", KEYS[1]) == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return 1
`

type redisAttemptClient interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// redisLoginLimiter comparte la ventana fija de intentos entre replicas.
type redisLoginLimiter struct {
	client redisAttemptClient
	window time.Duration
	max    int
	prefix string
}

func NewRedisLoginLimiter(client *redis.Client, window time.Duration, max int) LoginLimiter {
	if client == nil {
		return nil
	}
	if window <= 0 {
		window = time.Minute
	}
	if max <= 0 {
		max = 1
	}
	return &redisLoginLimiter{client: client, window: window, max: max, prefix: "finance:login:"}
}

func (l *redisLoginLimiter) key(username string) string {
	if u := strings.TrimSpace(username); u != "" {
		return l.prefix + u
	}
	return ""
}

// Allow falla abierto si redis no responde: el login sigue protegido por el limite por IP.
func (l *redisLoginLimiter) Allow(ctx context.Context, username string) bool {
	if l == nil || l.client == nil {
		return true
	}
	key := l.key(username)
	if key == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	admitted, err := l.client.Eval(ctx, loginAttemptScript, []string{key}, l.window.Milliseconds(), l.max).Int()
	if err != nil {
		return true
	}
	return admitted == 1
}

func (l *redisLoginLimiter) Reset(ctx context.Context, username string) {
	if l == nil || l.client == nil {
		return
	}
	key := l.key(username)
	if key == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	_ = l.client.Del(ctx, key).Err()
}
