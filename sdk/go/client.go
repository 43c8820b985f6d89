package tooldosdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal ToolDo HTTP API client.
type Client struct {
	BaseURL     string
	CompanyID   string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, companyID string) *Client {
	return &Client{
		BaseURL:   baseURL,
		CompanyID: companyID,
		Timeout:   10 * time.Second,
	}
}

// Action represents the API action model (partial).
type Action struct {
	ID            string  `json:"id"`
	CompanyID     string  `json:"company_id"`
	Title         string  `json:"title"`
	Status        string  `json:"status"`
	Priority      string  `json:"priority"`
	ResponsibleID *string `json:"responsible_id,omitempty"`
	IsLate        bool    `json:"is_late"`
	CompletedAt   *string `json:"completed_at,omitempty"`
}

// Member represents a company member.
type Member struct {
	ID        string `json:"id"`
	CompanyID string `json:"company_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	CompanyID  string `json:"company_id"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
}

// Summary mirrors the dashboard figures.
type Summary struct {
	TotalDeliveries        int     `json:"total_deliveries"`
	AvgCompletionRate      float64 `json:"avg_completion_rate"`
	TotalLate              int     `json:"total_late"`
	Velocity               int     `json:"velocity"`
	DeliveriesDelta        int     `json:"deliveries_delta"`
	DeliveriesPercentDelta float64 `json:"deliveries_percent_delta"`
	VelocityDelta          int     `json:"velocity_delta"`
	LateDelta              int     `json:"late_delta"`
	CompletionRateDelta    float64 `json:"completion_rate_delta"`
}

// TrendPoint is one day of the delivery trend.
type TrendPoint struct {
	Day   time.Time `json:"day"`
	Count int       `json:"count"`
}

// Dashboard is the aggregate company view for one period.
type Dashboard struct {
	Preset  string       `json:"preset"`
	From    string       `json:"from"`
	To      string       `json:"to"`
	Label   string       `json:"label"`
	Summary Summary      `json:"summary"`
	Team    []Member     `json:"team"`
	Trend   []TrendPoint `json:"trend"`
}

// ActionPage wraps paginated action listings.
type ActionPage struct {
	Items []Action `json:"items"`
	Page  int      `json:"page"`
	Limit int      `json:"limit"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateAction creates an action in the client's company.
func (c *Client) CreateAction(ctx context.Context, title, priority string) (Action, error) {
	body := map[string]any{
		"title": title,
	}
	if priority != "" {
		body["priority"] = priority
	}
	var resp Action
	err := c.do(ctx, http.MethodPost, c.companyPath("actions"), body, &resp)
	return resp, err
}

// UpdateActionStatus moves an action to a new status.
func (c *Client) UpdateActionStatus(ctx context.Context, actionID, status string) (Action, error) {
	var resp Action
	endpoint := fmt.Sprintf("v0/actions/%s", url.PathEscape(actionID))
	err := c.do(ctx, http.MethodPatch, endpoint, map[string]any{"status": status}, &resp)
	return resp, err
}

// AssignAction sets the responsible member.
func (c *Client) AssignAction(ctx context.Context, actionID, memberID string) (Action, error) {
	var resp Action
	endpoint := fmt.Sprintf("v0/actions/%s", url.PathEscape(actionID))
	err := c.do(ctx, http.MethodPatch, endpoint, map[string]any{"responsible_id": memberID}, &resp)
	return resp, err
}

// ListActions lists actions visible to the caller.
func (c *Client) ListActions(ctx context.Context, scope string, page, limit int) (ActionPage, error) {
	q := url.Values{}
	if scope != "" {
		q.Set("scope", scope)
	}
	if page > 0 {
		q.Set("page", fmt.Sprint(page))
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	endpoint := "v0/actions"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp ActionPage
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Dashboard fetches the company dashboard for a preset.
func (c *Client) Dashboard(ctx context.Context, preset string) (Dashboard, error) {
	endpoint := c.companyPath("dashboard")
	if preset != "" {
		endpoint += "?preset=" + url.QueryEscape(preset)
	}
	var resp Dashboard
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Members lists the company roster.
func (c *Client) Members(ctx context.Context) ([]Member, error) {
	var resp []Member
	err := c.do(ctx, http.MethodGet, c.companyPath("members"), nil, &resp)
	return resp, err
}

// Events tails the event log.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := fmt.Sprintf("v0/events?limit=%d&company_id=%s", limit, url.QueryEscape(c.CompanyID))
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) companyPath(p string) string {
	company := url.PathEscape(c.CompanyID)
	return fmt.Sprintf("v0/companies/%s/%s", company, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
