// Пакет graph — HTTP-клиент к Microsoft Graph API.
// Реализует Client Credentials flow с кэшированием токена (обновление
// за 30s до истечения), обход библиотеки документов SharePoint с
// пагинацией и скачивание файла по share-ссылке.
package graph

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/nambgit/archetype-data-audit/internal/domain/model"
)

// Базовые URL Microsoft Graph и Azure AD.
const (
	defaultBaseURL  = "https://graph.microsoft.com/v1.0"
	defaultLoginURL = "https://login.microsoftonline.com"
	tokenScope      = "https://graph.microsoft.com/.default"
)

// Ошибки Graph API, различимые обработчиками шлюза.
var (
	// ErrUnauthorized — Graph отклонил учётные данные приложения.
	ErrUnauthorized = errors.New("graph: доступ не авторизован")
	// ErrForbidden — приложению не хватает прав на ресурс.
	ErrForbidden = errors.New("graph: доступ запрещён")
	// ErrItemNotFound — элемент не найден в библиотеке.
	ErrItemNotFound = errors.New("graph: элемент не найден")
)

// Item — файл библиотеки документов в представлении сканера.
type Item struct {
	// Path — канонический путь элемента (webUrl)
	Path string
	// Name — имя файла
	Name string
	// LastModified — время последней модификации (UTC)
	LastModified time.Time
	// Created — время создания (UTC)
	Created time.Time
	// Owner — отображаемое имя автора последнего изменения
	// (model.OwnerUnknown, если Graph не сообщает)
	Owner string
}

// Client — клиент Microsoft Graph API.
type Client struct {
	baseURL      string
	loginURL     string
	tenantID     string
	clientID     string
	clientSecret string

	httpClient *http.Client
	logger     *slog.Logger

	// Кэш токена доступа
	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// New создаёт клиент Graph API.
// httpClient — HTTP-клиент (может содержать TLS конфигурацию).
func New(tenantID, clientID, clientSecret string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		baseURL:      defaultBaseURL,
		loginURL:     defaultLoginURL,
		tenantID:     tenantID,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   httpClient,
		logger:       logger.With(slog.String("component", "graph_client")),
	}
}

// WithEndpoints переопределяет базовые URL (для тестов с httptest).
func (c *Client) WithEndpoints(baseURL, loginURL string) *Client {
	c.baseURL = strings.TrimRight(baseURL, "/")
	c.loginURL = strings.TrimRight(loginURL, "/")
	return c
}

// --- Аутентификация ---

// tokenEndpoint возвращает URL endpoint'а получения токена.
func (c *Client) tokenEndpoint() string {
	return fmt.Sprintf("%s/%s/oauth2/v2.0/token", c.loginURL, c.tenantID)
}

// getToken возвращает актуальный access token, обновляя при необходимости.
// Токен обновляется за 30 секунд до истечения.
func (c *Client) getToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Add(30*time.Second).Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	token, err := c.requestToken(ctx)
	if err != nil {
		return "", err
	}

	c.accessToken = token.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)

	c.logger.Debug("Graph токен обновлён",
		slog.Time("expires_at", c.tokenExpiry),
	)

	return c.accessToken, nil
}

// tokenResponse — ответ Azure AD на запрос токена.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// requestToken выполняет Client Credentials flow.
func (c *Client) requestToken(ctx context.Context) (*tokenResponse, error) {
	data := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"scope":         {tokenScope},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenEndpoint(), strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("создание запроса токена: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("запрос токена Azure AD: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: Azure AD вернул статус %d: %s", ErrUnauthorized, resp.StatusCode, string(body))
	}

	var token tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("декодирование токена Azure AD: %w", err)
	}

	return &token, nil
}

// doAuthorized выполняет GET-запрос к Graph API с авторизацией.
// fullURL — абсолютный URL (для следования @odata.nextLink) либо
// путь относительно baseURL.
func (c *Client) doAuthorized(ctx context.Context, fullURL string) (*http.Response, error) {
	token, err := c.getToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("получение токена: %w", err)
	}

	if !strings.HasPrefix(fullURL, "http") {
		fullURL = c.baseURL + fullURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("создание запроса: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("запрос Graph API: %w", err)
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, mapStatus(resp.StatusCode, string(body))
	}

	return resp, nil
}

// mapStatus транслирует HTTP-статус Graph в ошибки пакета.
func mapStatus(status int, body string) error {
	switch status {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w (статус %d): %s", ErrUnauthorized, status, body)
	case http.StatusForbidden:
		return fmt.Errorf("%w (статус %d): %s", ErrForbidden, status, body)
	case http.StatusNotFound:
		return fmt.Errorf("%w (статус %d): %s", ErrItemNotFound, status, body)
	default:
		return fmt.Errorf("Graph API вернул статус %d: %s", status, body)
	}
}

// --- Sites / Drives API ---

// siteResponse — ответ /sites/{id}?$expand=drive.
type siteResponse struct {
	Drive struct {
		ID string `json:"id"`
	} `json:"drive"`
}

// DriveID возвращает идентификатор диска (библиотеки документов) сайта.
// siteID — составной идентификатор формата hostname,site-id,web-id.
func (c *Client) DriveID(ctx context.Context, siteID string) (string, error) {
	if parts := strings.Split(siteID, ","); len(parts) != 3 {
		return "", fmt.Errorf("некорректный идентификатор сайта %q: ожидался формат hostname,site-id,web-id", siteID)
	}

	resp, err := c.doAuthorized(ctx, "/sites/"+url.PathEscape(siteID)+"?$expand=drive")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var site siteResponse
	if err := json.NewDecoder(resp.Body).Decode(&site); err != nil {
		return "", fmt.Errorf("декодирование ответа сайта: %w", err)
	}
	if site.Drive.ID == "" {
		return "", fmt.Errorf("сайт %s не содержит библиотеки документов", siteID)
	}

	return site.Drive.ID, nil
}

// driveItem — элемент диска в ответах Graph.
// File/identity-поля опциональны: папки не имеют file facet.
type driveItem struct {
	Name   string `json:"name"`
	WebURL string `json:"webUrl"`
	File   *struct {
		MimeType string `json:"mimeType"`
	} `json:"file"`
	CreatedDateTime      time.Time `json:"createdDateTime"`
	LastModifiedDateTime time.Time `json:"lastModifiedDateTime"`
	LastModifiedBy       *struct {
		User *struct {
			DisplayName string `json:"displayName"`
		} `json:"user"`
	} `json:"lastModifiedBy"`
}

// owner возвращает отображаемое имя автора последнего изменения.
func (it *driveItem) owner() string {
	if it.LastModifiedBy != nil && it.LastModifiedBy.User != nil && it.LastModifiedBy.User.DisplayName != "" {
		return it.LastModifiedBy.User.DisplayName
	}
	return model.OwnerUnknown
}

// descendantsPage — страница ответа /drives/{id}/root/descendants.
type descendantsPage struct {
	Value    []driveItem `json:"value"`
	NextLink string      `json:"@odata.nextLink"`
}

// ListDescendants обходит все файлы библиотеки документов, следуя
// пагинации @odata.nextLink. Папки пропускаются. fn вызывается для
// каждого файла; ошибка fn прерывает обход.
func (c *Client) ListDescendants(ctx context.Context, driveID string, fn func(Item) error) error {
	next := "/drives/" + url.PathEscape(driveID) + "/root/descendants"

	for next != "" {
		resp, err := c.doAuthorized(ctx, next)
		if err != nil {
			return err
		}

		var page descendantsPage
		err = json.NewDecoder(resp.Body).Decode(&page)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("декодирование страницы библиотеки: %w", err)
		}

		for _, it := range page.Value {
			// Без file facet — папка
			if it.File == nil {
				continue
			}
			item := Item{
				Path:         it.WebURL,
				Name:         it.Name,
				LastModified: it.LastModifiedDateTime.UTC(),
				Created:      it.CreatedDateTime.UTC(),
				Owner:        it.owner(),
			}
			if err := fn(item); err != nil {
				return err
			}
		}

		next = page.NextLink
	}

	return nil
}

// --- Скачивание по share-ссылке ---

// EncodeShareToken кодирует webUrl файла в share-токен Graph API:
// "u!" + base64url без padding.
func EncodeShareToken(webURL string) string {
	return "u!" + base64.RawURLEncoding.EncodeToString([]byte(webURL))
}

// DownloadShared скачивает содержимое файла по его webUrl через
// /shares/{token}/driveItem/content. Возвращает открытый ответ —
// вызывающая сторона обязана закрыть Body.
func (c *Client) DownloadShared(ctx context.Context, webURL string) (*http.Response, error) {
	token := EncodeShareToken(webURL)
	return c.doAuthorized(ctx, "/shares/"+token+"/driveItem/content")
}
