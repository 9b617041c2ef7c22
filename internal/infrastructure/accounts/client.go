package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"checkout.backend/internal/config"
	"checkout.backend/internal/domain/entities"
	domainerrors "checkout.backend/internal/domain/errors"
	"github.com/sendgrid/rest"
)

// Client talks to the auth provider's admin user API
type Client struct {
	http       *rest.Client
	baseURL    string
	serviceKey string
}

// NewClient creates an accounts client
func NewClient(cfg config.AccountsConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		http:       &rest.Client{HTTPClient: &http.Client{Timeout: timeout}},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		serviceKey: cfg.ServiceKey,
	}
}

type createUserRequest struct {
	Email        string            `json:"email"`
	Password     string            `json:"password"`
	EmailConfirm bool              `json:"email_confirm"`
	UserMetadata map[string]string `json:"user_metadata,omitempty"`
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type listUsersResponse struct {
	Users []userResponse `json:"users"`
}

type errorResponse struct {
	Code    string `json:"error_code"`
	Message string `json:"msg"`
	Error   string `json:"error"`
}

// EnsureUser creates a login for req. When the email is already registered
// the existing user gets req.Password, so the credentials we send stay valid.
func (c *Client) EnsureUser(ctx context.Context, req entities.NewAccount) (*entities.AccountUser, error) {
	user, err := c.CreateUser(ctx, req)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, domainerrors.ErrAccountExists) {
		return nil, err
	}

	existing, err := c.FindUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("lookup existing account: %w", err)
	}
	if err := c.UpdatePassword(ctx, existing.ID, req.Password); err != nil {
		return nil, fmt.Errorf("reset existing account password: %w", err)
	}
	existing.AlreadyExisted = true
	return existing, nil
}

// CreateUser creates a confirmed user. Returns ErrAccountExists on 409/422 "already registered".
func (c *Client) CreateUser(ctx context.Context, req entities.NewAccount) (*entities.AccountUser, error) {
	body, err := json.Marshal(createUserRequest{
		Email:        req.Email,
		Password:     req.Password,
		EmailConfirm: true,
		UserMetadata: req.Metadata,
	})
	if err != nil {
		return nil, err
	}
	resp, err := c.send(ctx, rest.Post, "/admin/users", nil, body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusUnprocessableEntity {
		if alreadyRegistered(resp.Body) {
			return nil, fmt.Errorf("create user %s: %w", req.Email, domainerrors.ErrAccountExists)
		}
	}
	if err := statusError("create user", resp); err != nil {
		return nil, err
	}
	var u userResponse
	if err := json.Unmarshal([]byte(resp.Body), &u); err != nil {
		return nil, fmt.Errorf("decode created user: %w", err)
	}
	if u.ID == "" {
		return nil, fmt.Errorf("create user %s: empty id in response", req.Email)
	}
	return &entities.AccountUser{ID: u.ID, Email: u.Email}, nil
}

// FindUserByEmail looks a user up by email
func (c *Client) FindUserByEmail(ctx context.Context, email string) (*entities.AccountUser, error) {
	resp, err := c.send(ctx, rest.Get, "/admin/users", map[string]string{"filter": email}, nil)
	if err != nil {
		return nil, err
	}
	if err := statusError("list users", resp); err != nil {
		return nil, err
	}
	var list listUsersResponse
	if err := json.Unmarshal([]byte(resp.Body), &list); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	for _, u := range list.Users {
		if strings.EqualFold(u.Email, email) {
			return &entities.AccountUser{ID: u.ID, Email: u.Email}, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", email, domainerrors.ErrNotFound)
}

// UpdatePassword sets a new password on an existing user
func (c *Client) UpdatePassword(ctx context.Context, userID, password string) error {
	body, err := json.Marshal(map[string]string{"password": password})
	if err != nil {
		return err
	}
	resp, err := c.send(ctx, rest.Put, "/admin/users/"+url.PathEscape(userID), nil, body)
	if err != nil {
		return err
	}
	return statusError("update user", resp)
}

func (c *Client) send(ctx context.Context, method rest.Method, path string, query map[string]string, body []byte) (*rest.Response, error) {
	resp, err := c.http.SendWithContext(ctx, rest.Request{
		Method:      method,
		BaseURL:     c.baseURL + path,
		QueryParams: query,
		Body:        body,
		Headers: map[string]string{
			"apikey":        c.serviceKey,
			"Authorization": "Bearer " + c.serviceKey,
			"Content-Type":  "application/json",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("accounts %s %s: %w", method, path, err)
	}
	return resp, nil
}

func statusError(op string, resp *rest.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return fmt.Errorf("%s: status %d: %s", op, resp.StatusCode, truncate(resp.Body, 200))
}

func alreadyRegistered(body string) bool {
	var e errorResponse
	_ = json.Unmarshal([]byte(body), &e)
	text := strings.ToLower(e.Code + " " + e.Message + " " + e.Error + " " + body)
	return strings.Contains(text, "already") || strings.Contains(text, "email_exists")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
