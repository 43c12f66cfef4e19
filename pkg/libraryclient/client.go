// Package libraryclient calls the library HTTP API.
package libraryclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"libraryapi/pkg/domain"
)

// Client calls the library service over HTTP.
// Every call takes the bearer token explicitly; an empty token calls anonymously.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// APIError represents a library service error response.
type APIError struct {
	Status    int
	Message   string
	Code      string
	RequestID string
	Details   []domain.FieldError
}

func (e *APIError) Error() string {
	if len(e.Details) == 0 {
		return e.Message
	}
	parts := make([]string, 0, len(e.Details))
	for _, d := range e.Details {
		parts = append(parts, d.Field+" "+d.Reason)
	}
	return e.Message + ": " + strings.Join(parts, "; ")
}

// LoginResponse is returned by Login.
type LoginResponse struct {
	Token     string          `json:"token"`
	Username  string          `json:"username"`
	Role      domain.UserRole `json:"role"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

// NewClient constructs a library service client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) Login(username, password string) (LoginResponse, error) {
	var resp LoginResponse
	err := c.call(http.MethodPost, "/auth/login", "", map[string]string{
		"username": username,
		"password": password,
	}, &resp)
	return resp, err
}

func (c *Client) Logout(token string) error {
	return c.call(http.MethodPost, "/auth/logout", token, nil, nil)
}

func (c *Client) ListBooks(token string) ([]domain.Book, error) {
	var books []domain.Book
	if err := c.call(http.MethodGet, "/books", token, nil, &books); err != nil {
		return nil, err
	}
	return books, nil
}

func (c *Client) GetBook(token, id string) (domain.Book, error) {
	var book domain.Book
	err := c.call(http.MethodGet, bookPath(id), token, nil, &book)
	return book, err
}

func (c *Client) CreateBook(token string, details domain.BookDetails) (domain.Book, error) {
	var book domain.Book
	err := c.call(http.MethodPost, "/books", token, details, &book)
	return book, err
}

func (c *Client) UpdateBook(token, id string, details domain.BookDetails) error {
	return c.call(http.MethodPut, bookPath(id), token, details, nil)
}

func (c *Client) DeleteBook(token, id string) error {
	return c.call(http.MethodDelete, bookPath(id), token, nil, nil)
}

func (c *Client) BorrowBook(token, id string) error {
	return c.call(http.MethodPatch, bookPath(id)+"/borrow", token, nil, nil)
}

func (c *Client) ReturnBook(token, id string) error {
	return c.call(http.MethodPatch, bookPath(id)+"/return", token, nil, nil)
}

func bookPath(id string) string {
	return "/books/" + url.PathEscape(id)
}

func (c *Client) call(method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	addAuthHeader(req, token)
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errResp struct {
			Error     string              `json:"error"`
			Code      string              `json:"code"`
			RequestID string              `json:"requestId"`
			Details   []domain.FieldError `json:"details"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		msg := errResp.Error
		if msg == "" {
			msg = resp.Status
		}
		return &APIError{
			Status:    resp.StatusCode,
			Message:   msg,
			Code:      strings.TrimSpace(errResp.Code),
			RequestID: errResp.RequestID,
			Details:   errResp.Details,
		}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func addAuthHeader(req *http.Request, token string) {
	if strings.TrimSpace(token) == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)
}
