// Package remote is the HTTP client for the registration backend: city and
// activity-code search, program lists, reference lists and the multipart
// registration endpoint.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/practicum-hub/practicum/internal/registration"
)

// ErrBaseURLRequired is returned when the client has no backend address.
var ErrBaseURLRequired = errors.New("remote: base url required")

// StatusError reports a non-2xx answer from the backend.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("remote: backend status %d", e.Code)
	}
	return fmt.Sprintf("remote: backend status %d: %s", e.Code, e.Body)
}

// Client wraps interactions with the registration backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	group      singleflight.Group
}

// NewClient constructs a client. A zero timeout defaults to 15 seconds.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, ErrBaseURLRequired
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// Ping checks that the backend answers its health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// SearchCities returns the cities matching query.
func (c *Client) SearchCities(ctx context.Context, query string) ([]registration.City, error) {
	return getList(ctx, c, "/cities?"+url.Values{"search": {query}}.Encode(), decodeList[registration.City])
}

// SearchActivityCodes returns the economic activity codes matching query.
func (c *Client) SearchActivityCodes(ctx context.Context, query string) ([]registration.ActivityCode, error) {
	return getList(ctx, c, "/activity-codes?"+url.Values{"search": {query}}.Encode(), decodeList[registration.ActivityCode])
}

// ListPrograms returns every program of a faculty.
func (c *Client) ListPrograms(ctx context.Context, facultyID int64) ([]registration.Program, error) {
	path := "/faculties/" + strconv.FormatInt(facultyID, 10) + "/programs"
	return getList(ctx, c, path, decodeList[registration.Program])
}

// ReferenceList returns a reference list. Entries may come as {value,label}
// or {id,name}.
func (c *Client) ReferenceList(ctx context.Context, kind registration.ListKind) ([]registration.Option, error) {
	return getList(ctx, c, "/catalogs/"+url.PathEscape(string(kind)), func(raw []byte) ([]registration.Option, error) {
		entries, err := decodeList[referenceEntry](raw)
		if err != nil {
			return nil, err
		}
		options := make([]registration.Option, 0, len(entries))
		for _, e := range entries {
			options = append(options, e.option())
		}
		return options, nil
	})
}

// Register posts an encoded registration. The backend's {success,message}
// body is decoded even on error statuses so its message reaches the user.
func (c *Client) Register(ctx context.Context, contentType string, body io.Reader) (registration.RegistrationResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/organizations/register", body)
	if err != nil {
		return registration.RegistrationResponse{}, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return registration.RegistrationResponse{}, fmt.Errorf("remote: register: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return registration.RegistrationResponse{}, fmt.Errorf("remote: read register response: %w", err)
	}
	var out registration.RegistrationResponse
	decodeErr := json.Unmarshal(data, &out)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		out.Success = false
		return out, &StatusError{Code: resp.StatusCode, Body: out.Message}
	}
	if decodeErr != nil {
		return registration.RegistrationResponse{}, fmt.Errorf("remote: decode register response: %w", decodeErr)
	}
	return out, nil
}

// getList performs a GET and decodes it, collapsing identical in-flight
// requests into one. Callers get their own copy of the shared slice.
func getList[T any](ctx context.Context, c *Client, path string, decode func([]byte) ([]T, error)) ([]T, error) {
	v, err, shared := c.group.Do(path, func() (any, error) {
		raw, err := c.get(ctx, path)
		if err != nil {
			return nil, err
		}
		return decode(raw)
	})
	if err != nil {
		c.logger.Debug("backend request failed", slog.String("path", path), slog.Any("error", err))
		return nil, err
	}
	if shared {
		c.logger.Debug("backend request shared", slog.String("path", path))
	}
	return append([]T(nil), v.([]T)...), nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	return io.ReadAll(io.LimitReader(resp.Body, 4<<20))
}

// decodeList accepts either a bare JSON array or an envelope {"data": [...]}.
func decodeList[T any](raw []byte) ([]T, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var items []T
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("remote: decode list: %w", err)
		}
		return items, nil
	}
	var envelope struct {
		Data []T `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("remote: decode list: %w", err)
	}
	return envelope.Data, nil
}

type referenceEntry struct {
	Value json.RawMessage `json:"value"`
	Label string          `json:"label"`
	ID    json.RawMessage `json:"id"`
	Name  string          `json:"name"`
}

func (e referenceEntry) option() registration.Option {
	value := rawScalar(e.Value)
	if value == "" {
		value = rawScalar(e.ID)
	}
	label := e.Label
	if label == "" {
		label = e.Name
	}
	return registration.Option{Value: value, Label: label}
}

// rawScalar renders a JSON string or number as text.
func rawScalar(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
