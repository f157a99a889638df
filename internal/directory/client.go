package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Roles known to the platform.
const (
	RoleStudent = "student"
	RoleSenior  = "senior"
	RoleMentor  = "mentor"
	RoleAdmin   = "admin"
)

var ErrUserNotFound = errors.New("user not found")

// User is the identity view the chat service consumes.
type User struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	IsActive bool   `json:"is_active"`
}

// Directory resolves user identities from the user service.
type Directory interface {
	Resolve(ctx context.Context, userID int) (User, error)
	BulkUsers(ctx context.Context, ids []int) ([]User, error)
}

// HTTPClient talks to the user service's internal REST API.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient constructs a directory client.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

// Resolve fetches a single user.
func (c *HTTPClient) Resolve(ctx context.Context, userID int) (User, error) {
	var user User
	err := c.getJSON(ctx, fmt.Sprintf("%s/internal/users/%d", c.baseURL, userID), &user)
	if err != nil {
		return User{}, err
	}
	if user.ID == 0 {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

// BulkUsers fetches multiple users in one call.
func (c *HTTPClient) BulkUsers(ctx context.Context, ids []int) ([]User, error) {
	if len(ids) == 0 {
		return []User{}, nil
	}
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.Itoa(id))
	}

	var resp struct {
		Users []User `json:"users"`
	}
	url := fmt.Sprintf("%s/internal/users?ids=%s", c.baseURL, strings.Join(parts, ","))
	if err := c.getJSON(ctx, url, &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

func (c *HTTPClient) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrUserNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("user service returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
