package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"sync"
	"time"

	"compass_sync/internal/config"
	"compass_sync/internal/logger"
	"compass_sync/internal/models"
)

var (
	// ErrAuthentication - Compass отклонил учётные данные или не выдал сессию.
	ErrAuthentication = errors.New("compass authentication failed")
	// ErrTransport - удалённый вызов завершился неуспешно.
	ErrTransport = errors.New("compass transport failure")
)

const (
	pathAuth         = "/services/admin.svc/AuthenticateUserCredentials"
	pathNewsFeed     = "/services/mobile.svc/GetNewsFeed?sessionstate=readonly"
	pathGetMessages  = "/services/mobile.svc/GetMessages?sessionstate=readonly"
	pathDownloadFile = "/services/FileDownload/FileRequestHandler"

	sessionCookie = "ASP.NET_SessionId"
	userAgent     = "iOS/12_1_2 type/iPhone CompassEducation/4.5.3"

	retryDelay = 2 * time.Second
)

// Client - HTTP-клиент Compass: вход по логину и паролю, затем запросы с cookie сессии.
type Client struct {
	baseURL    *url.URL
	username   string
	password   string
	maxRetries int
	retryDelay time.Duration
	httpClient *http.Client
	jar        *sessionJar

	mu       sync.Mutex
	loggedIn bool
}

// sessionJar - cookie jar, который можно очистить при смене сессии.
type sessionJar struct {
	mu  sync.Mutex
	jar *cookiejar.Jar
}

func newSessionJar() (*sessionJar, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &sessionJar{jar: jar}, nil
}

func (j *sessionJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.jar.SetCookies(u, cookies)
}

func (j *sessionJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.jar.Cookies(u)
}

func (j *sessionJar) reset() error {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.jar = jar
	return nil
}

type loginCredentials struct {
	SessionState string `json:"sessionstate"`
	Username     string `json:"username"`
	Password     string `json:"password"`
}

// NewClient создаёт клиента по настройкам Compass. BaseURL, если задан, заменяет https://<hostname>.
func NewClient(cfg config.CompassConfig) (*Client, error) {
	raw := cfg.BaseURL
	if raw == "" {
		raw = "https://" + cfg.Hostname
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid compass URL %q: %w", raw, err)
	}

	jar, err := newSessionJar()
	if err != nil {
		return nil, err
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 1
	}

	return &Client{
		baseURL:    base,
		username:   cfg.Username,
		password:   cfg.Password,
		maxRetries: retries,
		retryDelay: retryDelay,
		httpClient: &http.Client{Jar: jar, Timeout: timeout},
		jar:        jar,
	}, nil
}

// SetRetryDelay меняет паузу между повторами.
func (c *Client) SetRetryDelay(d time.Duration) {
	c.retryDelay = d
}

// Login открывает сессию, если она ещё не открыта. Первая попытка иногда не выдаёт
// cookie из-за Cloudflare, поэтому при её отсутствии выполняется вторая.
func (c *Client) Login(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loggedIn {
		return nil
	}

	for attempt := 1; attempt <= 2; attempt++ {
		ok, err := c.login(ctx)
		if err != nil {
			return err
		}
		if ok {
			c.loggedIn = true
			return nil
		}
		logger.Log.WithField("attempt", attempt).Warn("Compass login did not return a session")
	}
	return ErrAuthentication
}

func (c *Client) login(ctx context.Context) (bool, error) {
	body, err := json.Marshal(loginCredentials{
		SessionState: "readonly",
		Username:     c.username,
		Password:     c.password,
	})
	if err != nil {
		return false, err
	}

	if _, err := c.do(ctx, http.MethodPost, pathAuth, body); err != nil {
		if errors.Is(err, ErrAuthentication) {
			return false, err
		}
		return false, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}

	for _, cookie := range c.jar.Cookies(c.baseURL) {
		if cookie.Name == sessionCookie && cookie.Value != "" {
			return true, nil
		}
	}
	return false, nil
}

// logout забывает сессию и её cookie, чтобы следующий вызов Login вошёл заново.
func (c *Client) logout() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loggedIn = false
	return c.jar.reset()
}

// withSession выполняет call в открытой сессии. Если Compass отклонил сессию
// (истёк срок), выполняется повторный вход и ещё одна попытка.
func (c *Client) withSession(ctx context.Context, path string, call func() ([]byte, error)) ([]byte, error) {
	for attempt := 1; ; attempt++ {
		if err := c.Login(ctx); err != nil {
			return nil, err
		}
		data, err := call()
		if err == nil || !errors.Is(err, ErrAuthentication) {
			return data, err
		}
		if lerr := c.logout(); lerr != nil {
			return nil, lerr
		}
		if attempt == 2 {
			return nil, err
		}
		logger.Log.WithError(err).WithField("path", path).Warn("Compass session rejected, logging in again")
	}
}

// FetchNewsFeed возвращает сырые записи ленты новостей.
func (c *Client) FetchNewsFeed(ctx context.Context) ([]models.RawRecord, error) {
	return c.fetchRecords(ctx, pathNewsFeed)
}

// FetchMessages возвращает сырые записи сообщений.
func (c *Client) FetchMessages(ctx context.Context) ([]models.RawRecord, error) {
	return c.fetchRecords(ctx, pathGetMessages)
}

// FetchAttachment скачивает содержимое вложения по id.
func (c *Client) FetchAttachment(ctx context.Context, id int64) ([]byte, error) {
	path := pathDownloadFile + "?FileDownloadType=1&file=" + strconv.FormatInt(id, 10)
	return c.withSession(ctx, path, func() ([]byte, error) {
		return c.do(ctx, http.MethodGet, path, nil)
	})
}

func (c *Client) fetchRecords(ctx context.Context, path string) ([]models.RawRecord, error) {
	body, err := c.withSession(ctx, path, func() ([]byte, error) {
		body, err := c.do(ctx, http.MethodPost, path, nil)
		if err != nil {
			return nil, err
		}
		// Вместо JSON Compass отдаёт HTML-страницу входа, когда сессия истекла.
		if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '<' {
			return nil, fmt.Errorf("%w: %s: login page instead of data", ErrAuthentication, path)
		}
		return body, nil
	})
	if err != nil {
		return nil, err
	}
	records, err := models.UnwrapEnvelope(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrTransport, path, err)
	}
	return records, nil
}

// do выполняет запрос с повторами при сетевых ошибках и ответах 5xx.
func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	log := logger.Log.WithFields(logger.Fields{"method": method, "path": path})

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		data, retry, err := c.doOnce(ctx, method, path, body)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !retry || attempt == c.maxRetries {
			break
		}
		log.WithError(err).WithField("attempt", attempt).Warn("Compass request failed, retrying")

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrTransport, ctx.Err())
		case <-time.After(c.retryDelay):
		}
	}
	return nil, lastErr
}

func (c *Client) doOnce(ctx context.Context, method, path string, body []byte) ([]byte, bool, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, fmt.Errorf("%w: %s %s: %v", ErrTransport, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("%w: read %s: %v", ErrTransport, path, err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, false, fmt.Errorf("%w: %s %s: status %d", ErrAuthentication, method, path, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode >= 500, fmt.Errorf("%w: %s %s: status %d", ErrTransport, method, path, resp.StatusCode)
	}
	return data, false, nil
}
