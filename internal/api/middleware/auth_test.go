package middleware

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeVerifier — проверка учётных данных для тестов.
type fakeVerifier struct {
	valid bool
	err   error
}

func (f *fakeVerifier) Verify(username, password string) (bool, error) {
	return f.valid, f.err
}

// callProtected выполняет запрос к обработчику за BasicAuth.
func callProtected(t *testing.T, verifier *fakeVerifier, withCreds bool) *httptest.ResponseRecorder {
	t.Helper()

	handler := BasicAuth(verifier, "Audit System", discardLogger())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("ok"))
		}),
	)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if withCreds {
		req.SetBasicAuth("admin", "secret")
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

// TestBasicAuth_NoCredentials проверяет 401 с challenge без учётных данных.
func TestBasicAuth_NoCredentials(t *testing.T) {
	w := callProtected(t, &fakeVerifier{valid: true}, false)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("статус %d, ожидался 401", w.Code)
	}
	if got := w.Header().Get("WWW-Authenticate"); got != `Basic realm="Audit System"` {
		t.Errorf("WWW-Authenticate = %q", got)
	}
}

// TestBasicAuth_Valid проверяет пропуск валидных учётных данных.
func TestBasicAuth_Valid(t *testing.T) {
	w := callProtected(t, &fakeVerifier{valid: true}, true)

	if w.Code != http.StatusOK {
		t.Errorf("статус %d, ожидался 200", w.Code)
	}
	if w.Body.String() != "ok" {
		t.Errorf("тело = %q", w.Body.String())
	}
}

// TestBasicAuth_Invalid проверяет отклонение неверных учётных данных.
func TestBasicAuth_Invalid(t *testing.T) {
	w := callProtected(t, &fakeVerifier{valid: false}, true)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("статус %d, ожидался 401", w.Code)
	}
	if !strings.Contains(w.Body.String(), "UNAUTHORIZED") {
		t.Errorf("тело = %q, ожидался код UNAUTHORIZED", w.Body.String())
	}
}

// TestBasicAuth_VerifierError проверяет 500 при недоступности механизма проверки.
func TestBasicAuth_VerifierError(t *testing.T) {
	w := callProtected(t, &fakeVerifier{err: errors.New("AD недоступен")}, true)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("статус %d, ожидался 500", w.Code)
	}
	if !strings.Contains(w.Body.String(), "COLLABORATOR_ERROR") {
		t.Errorf("тело = %q, ожидался код COLLABORATOR_ERROR", w.Body.String())
	}
}
