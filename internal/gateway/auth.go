package gateway

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

// ErrUnauthenticated — запрос не прошёл аутентификацию.
var ErrUnauthenticated = errors.New("unauthenticated")

// Authenticator проверяет запрос до upgrade соединения.
type Authenticator interface {
	Authenticate(r *http.Request) error
}

// StaticTokenAuth — аутентификация статическим токеном.
//
// Токен передаётся заголовком "Authorization: Bearer <token>" или,
// поскольку браузерный WebSocket API не умеет ставить заголовки,
// query-параметром "token".
type StaticTokenAuth struct {
	token []byte
}

// NewStaticTokenAuth создаёт аутентификатор со статическим токеном.
func NewStaticTokenAuth(token string) *StaticTokenAuth {
	return &StaticTokenAuth{token: []byte(token)}
}

// Authenticate реализует Authenticator.
func (a *StaticTokenAuth) Authenticate(r *http.Request) error {
	presented := bearerToken(r)
	if presented == "" {
		presented = r.URL.Query().Get("token")
	}
	if presented == "" {
		return ErrUnauthenticated
	}

	if subtle.ConstantTimeCompare([]byte(presented), a.token) != 1 {
		return ErrUnauthenticated
	}
	return nil
}

// AllowAll пропускает любые запросы. Используется, когда токен
// не сконфигурирован (локальная разработка).
type AllowAll struct{}

// Authenticate реализует Authenticator.
func (AllowAll) Authenticate(*http.Request) error { return nil }

// bearerToken извлекает токен из заголовка Authorization.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimPrefix(header, prefix)
}
