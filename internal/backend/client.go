// Package backend implements the HTTP client for the rate-calendar
// assessment API. All methods are context-aware, respect the shared rate
// limiter, and retry on transient errors (429, 5xx).
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/derickschaefer/ratecal/internal/model"
	"github.com/derickschaefer/ratecal/internal/util"
)

const (
	defaultBaseURL = "http://localhost:8000"
	maxRetries     = 4

	// InitialCursor is the cursor the first page of a query is requested with.
	InitialCursor = "0"
)

// CursorMode selects how the next page's cursor is derived.
type CursorMode string

const (
	// CursorServer honors the response's nextCursor; absent means done.
	CursorServer CursorMode = "server"
	// CursorCounter is for servers that never send nextCursor: the cursor
	// is incremented after every non-empty page.
	CursorCounter CursorMode = "counter"
)

// ParseCursorMode validates a config or flag value.
func ParseCursorMode(s string) (CursorMode, error) {
	switch m := CursorMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "", CursorServer:
		return CursorServer, nil
	case CursorCounter:
		return m, nil
	}
	return "", fmt.Errorf("unknown cursor mode %q (want server or counter)", s)
}

// StatusError is a non-2xx response that was not retried away.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Message)
}

// Temporary reports whether the status is one the client retries.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// Client is the rate-calendar API HTTP client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	debug      bool
	cursorMode CursorMode
}

// NewClient creates a Client with the given bearer token and timeout.
func NewClient(token, baseURL string, timeout time.Duration, ratePerSec float64, debug bool, mode CursorMode) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if mode == "" {
		mode = CursorServer
	}
	burst := int(ratePerSec)
	if burst < 1 {
		burst = 1
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		limiter:    rate.NewLimiter(rate.Limit(ratePerSec), burst),
		debug:      debug,
		cursorMode: mode,
	}
}

// ─── Rate Calendar ────────────────────────────────────────────────────────────

type rawResponse struct {
	Rooms      []model.WireRoom `json:"room_categories"`
	NextCursor json.RawMessage  `json:"nextCursor"`
}

// FetchPage implements the pagination fetcher: it loads the room categories
// for q starting at cursor.
func (c *Client) FetchPage(ctx context.Context, q model.Query, cursor string) (*model.Page, error) {
	return c.GetRoomCalendar(ctx, q, cursor)
}

// GetRoomCalendar fetches one page of the rate and availability calendar.
func (c *Client) GetRoomCalendar(ctx context.Context, q model.Query, cursor string) (*model.Page, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if cursor == "" {
		cursor = InitialCursor
	}
	params := url.Values{}
	params.Set("start_date", util.FormatDate(q.Start))
	params.Set("end_date", util.FormatDate(q.End))
	params.Set("cursor", cursor)

	endpoint := fmt.Sprintf("/api/v1/property/%d/rate-calendar/assessment", q.PropertyID)

	var raw rawResponse
	if err := c.get(ctx, endpoint, params, &raw); err != nil {
		return nil, fmt.Errorf("rate calendar %s cursor %s: %w", q.Key(), cursor, err)
	}

	rooms, err := normalizeRooms(raw.Rooms)
	if err != nil {
		return nil, fmt.Errorf("rate calendar %s cursor %s: %w", q.Key(), cursor, err)
	}

	page := &model.Page{Rooms: rooms, Cursor: cursor}
	switch c.cursorMode {
	case CursorCounter:
		if len(rooms) > 0 {
			n, err := strconv.Atoi(cursor)
			if err != nil {
				return nil, fmt.Errorf("counter cursor %q is not an integer", cursor)
			}
			page.NextCursor = strconv.Itoa(n + 1)
		}
	default:
		next, err := decodeCursor(raw.NextCursor)
		if err != nil {
			return nil, fmt.Errorf("rate calendar %s: %w", q.Key(), err)
		}
		page.NextCursor = next
	}
	return page, nil
}

// decodeCursor accepts a JSON number, a string, null or nothing.
func decodeCursor(raw json.RawMessage) (string, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return "", nil
	}
	if strings.HasPrefix(s, `"`) {
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return "", fmt.Errorf("decoding nextCursor: %w", err)
		}
		return v, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("decoding nextCursor %s: %w", s, err)
	}
	return n.String(), nil
}

func normalizeRooms(raw []model.WireRoom) ([]model.RoomCategory, error) {
	rooms := make([]model.RoomCategory, 0, len(raw))
	for _, r := range raw {
		room, err := model.FromWire(r)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}

// ─── Low-level HTTP ───────────────────────────────────────────────────────────

// get performs a GET request against the API, handling rate limiting and retries.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	reqURL := c.baseURL + endpoint + "?" + params.Encode()
	requestID := uuid.NewString()

	if c.debug {
		slog.Debug("backend request", "url", reqURL, "request_id", requestID, "auth", c.token != "")
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))*500) * time.Millisecond
			slog.Debug("retrying after backoff", "attempt", attempt, "backoff", backoff, "request_id", requestID)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return fmt.Errorf("building request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "ratecal-cli/1.0")
		req.Header.Set("X-Request-ID", requestID)
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("http: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("reading body: %w", err)
			continue
		}

		if c.debug {
			slog.Debug("backend response", "status", resp.StatusCode, "bytes", len(body), "request_id", requestID)
		}

		statusErr := &StatusError{Code: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		if statusErr.Temporary() {
			lastErr = statusErr
			continue
		}

		if resp.StatusCode != http.StatusOK {
			var apiErr struct {
				Detail  string `json:"detail"`
				Message string `json:"message"`
			}
			_ = json.Unmarshal(body, &apiErr)
			if apiErr.Detail != "" {
				statusErr.Message = apiErr.Detail
			} else if apiErr.Message != "" {
				statusErr.Message = apiErr.Message
			}
			return statusErr
		}

		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("after %d attempts: %w", maxRetries, lastErr)
}
