// Пакет ldapauth — проверка учётных данных операторов.
// Два способа: статическая пара логин/пароль из конфигурации
// и bind к Active Directory с проверкой членства в группе.
package ldapauth

import (
	"crypto/subtle"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-ldap/ldap/v3"

	"github.com/nambgit/archetype-data-audit/internal/config"
)

// Verifier — проверка учётных данных оператора.
type Verifier interface {
	// Verify возвращает true при корректных учётных данных.
	// Ошибка означает недоступность механизма проверки, а не отказ.
	Verify(username, password string) (bool, error)
}

// --- Статическая проверка ---

// StaticVerifier сравнивает учётные данные с парой из конфигурации.
type StaticVerifier struct {
	username string
	password string
}

// NewStaticVerifier создаёт проверку по статическим учётным данным.
func NewStaticVerifier(username, password string) *StaticVerifier {
	return &StaticVerifier{username: username, password: password}
}

// Verify сравнивает за константное время.
func (v *StaticVerifier) Verify(username, password string) (bool, error) {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(v.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(v.password)) == 1
	return userOK && passOK, nil
}

// --- Проверка через Active Directory ---

// ADVerifier выполняет bind к Active Directory от имени пользователя
// (UPN) и проверяет членство в разрешённой группе.
type ADVerifier struct {
	serverURL      string
	baseDN         string
	upnDomain      string
	allowedGroupDN string
	tlsConfig      *tls.Config
	logger         *slog.Logger
}

// NewADVerifier создаёт проверку через Active Directory.
func NewADVerifier(cfg *config.Config, logger *slog.Logger) *ADVerifier {
	scheme := "ldap"
	if cfg.ADUseSSL {
		scheme = "ldaps"
	}

	var tlsCfg *tls.Config
	if cfg.ADUseSSL {
		tlsCfg = &tls.Config{
			ServerName:         cfg.ADServer,
			InsecureSkipVerify: cfg.LDAPSkipCertVerify,
		}
	}

	return &ADVerifier{
		serverURL:      fmt.Sprintf("%s://%s:%d", scheme, cfg.ADServer, cfg.ADPort),
		baseDN:         cfg.ADBaseDN,
		upnDomain:      domainFromBaseDN(cfg.ADBaseDN),
		allowedGroupDN: cfg.ADAllowedGroupDN,
		tlsConfig:      tlsCfg,
		logger:         logger.With(slog.String("component", "ldap_auth")),
	}
}

// domainFromBaseDN собирает DNS-домен из DC-компонентов base DN:
// "ou=Users,dc=corp,dc=example,dc=com" → "corp.example.com".
func domainFromBaseDN(baseDN string) string {
	var parts []string
	for _, rdn := range strings.Split(baseDN, ",") {
		rdn = strings.TrimSpace(rdn)
		if value, ok := strings.CutPrefix(strings.ToLower(rdn), "dc="); ok {
			parts = append(parts, value)
		}
	}
	return strings.Join(parts, ".")
}

// Verify выполняет bind от имени пользователя и проверяет группу.
func (v *ADVerifier) Verify(username, password string) (bool, error) {
	// Пустой пароль AD трактует как анонимный bind — отклоняем сразу
	if username == "" || password == "" {
		return false, nil
	}

	conn, err := v.dial()
	if err != nil {
		return false, fmt.Errorf("ошибка подключения к AD: %w", err)
	}
	defer conn.Close()

	upn := username
	if !strings.Contains(username, "@") && v.upnDomain != "" {
		upn = username + "@" + v.upnDomain
	}

	if err := conn.Bind(upn, password); err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultInvalidCredentials) {
			v.logger.Warn("Отклонён bind к AD",
				slog.String("user", username),
			)
			return false, nil
		}
		return false, fmt.Errorf("ошибка bind к AD: %w", err)
	}

	if v.allowedGroupDN == "" {
		return true, nil
	}
	return v.isGroupMember(conn, username)
}

// dial устанавливает соединение с сервером AD.
func (v *ADVerifier) dial() (*ldap.Conn, error) {
	if v.tlsConfig != nil {
		return ldap.DialURL(v.serverURL, ldap.DialWithTLSConfig(v.tlsConfig))
	}
	return ldap.DialURL(v.serverURL)
}

// isGroupMember проверяет членство пользователя в разрешённой группе.
// Поиск выполняется под bind'ом самого пользователя.
func (v *ADVerifier) isGroupMember(conn *ldap.Conn, username string) (bool, error) {
	sam := username
	if at := strings.Index(sam, "@"); at >= 0 {
		sam = sam[:at]
	}

	filter := fmt.Sprintf(
		"(&(objectClass=user)(sAMAccountName=%s)(memberOf=%s))",
		ldap.EscapeFilter(sam), ldap.EscapeFilter(v.allowedGroupDN),
	)
	req := ldap.NewSearchRequest(
		v.baseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 1, 0, false,
		filter,
		[]string{"dn"},
		nil,
	)

	res, err := conn.Search(req)
	if err != nil {
		return false, fmt.Errorf("ошибка поиска в AD: %w", err)
	}

	if len(res.Entries) == 0 {
		v.logger.Warn("Пользователь вне разрешённой группы",
			slog.String("user", username),
			slog.String("group", v.allowedGroupDN),
		)
		return false, nil
	}
	return true, nil
}
