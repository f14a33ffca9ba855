// auth.go — middleware HTTP Basic Auth для операторских endpoint'ов.
// Проверка учётных данных делегируется ldapauth.Verifier: статическая
// пара из конфигурации либо bind к Active Directory.
package middleware

import (
	"log/slog"
	"net/http"

	apierrors "github.com/nambgit/archetype-data-audit/internal/api/errors"
	"github.com/nambgit/archetype-data-audit/internal/ldapauth"
)

// BasicAuth возвращает middleware, требующий Basic-аутентификацию.
// realm отображается в диалоге браузера.
func BasicAuth(verifier ldapauth.Verifier, realm string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, password, ok := r.BasicAuth()
			if !ok {
				challenge(w, realm)
				return
			}

			valid, err := verifier.Verify(username, password)
			if err != nil {
				// Механизм проверки недоступен (AD не отвечает)
				logger.Error("Ошибка проверки учётных данных",
					slog.String("user", username),
					slog.String("error", err.Error()),
				)
				apierrors.CollaboratorError(w, "сервис аутентификации недоступен")
				return
			}
			if !valid {
				logger.Warn("Отклонена попытка входа",
					slog.String("user", username),
					slog.String("remote_addr", r.RemoteAddr),
				)
				challenge(w, realm)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// challenge отправляет 401 с запросом Basic-аутентификации.
func challenge(w http.ResponseWriter, realm string) {
	w.Header().Set("WWW-Authenticate", `Basic realm="`+realm+`"`)
	apierrors.Unauthorized(w, "требуется аутентификация")
}
