// Package api is the typed HTTP client for the list service. It maps
// HTTP failures onto the three error kinds the client engine cares about:
// validation (surfaced, never retried), not-found (identity fallback) and
// network (rollback, manual retry).
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/magnusoverli/sushe-online-sub002/internal/model"
)

var (
	// ErrValidation covers bad input shape, duplicate names and
	// locked-year violations.
	ErrValidation = errors.New("validation rejected")
	// ErrNotFound means the list or entry no longer exists server-side.
	ErrNotFound = errors.New("not found")
	// ErrNetwork means the request never produced a server answer.
	ErrNetwork = errors.New("network failure")
)

// Client talks to one list service on behalf of one user. SocketID is the
// id of this client's push connection; the server echoes it into the
// resulting broadcast so our own connection is excluded.
type Client struct {
	baseURL  string
	userID   string
	socketID string
	http     *http.Client
}

func New(baseURL, userID, socketID string) *Client {
	return &Client{
		baseURL:  baseURL,
		userID:   userID,
		socketID: socketID,
		http:     &http.Client{Timeout: 15 * time.Second},
	}
}

// SocketID returns the push-connection id sent with every write.
func (c *Client) SocketID() string { return c.socketID }

func (c *Client) Lists(ctx context.Context) ([]model.List, error) {
	var out []model.List
	if err := c.do(ctx, http.MethodGet, "/lists", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListView is the GET /lists/{id} response.
type ListView struct {
	List    model.List    `json:"list"`
	Entries []model.Entry `json:"entries"`
}

func (c *Client) GetList(ctx context.Context, listID string) (ListView, error) {
	var out ListView
	err := c.do(ctx, http.MethodGet, "/lists/"+listID, nil, &out)
	return out, err
}

type CreateListRequest struct {
	Name    string  `json:"name"`
	Year    *int    `json:"year,omitempty"`
	GroupID *string `json:"groupId,omitempty"`
	IsMain  bool    `json:"isMain,omitempty"`
}

func (c *Client) CreateList(ctx context.Context, req CreateListRequest) (model.List, error) {
	var out model.List
	err := c.do(ctx, http.MethodPost, "/lists", req, &out)
	return out, err
}

func (c *Client) PatchList(ctx context.Context, listID string, patch model.ListPatch) (model.List, error) {
	var out model.List
	err := c.do(ctx, http.MethodPatch, "/lists/"+listID, patch, &out)
	return out, err
}

func (c *Client) DeleteList(ctx context.Context, listID string) error {
	return c.do(ctx, http.MethodDelete, "/lists/"+listID, nil, nil)
}

// Reorder sends the complete new order as a sequence of entry identities.
// Entry content is untouched server-side; this is the cheapest write.
func (c *Client) Reorder(ctx context.Context, listID string, order []string) error {
	body := map[string]any{"order": order}
	return c.do(ctx, http.MethodPatch, "/lists/"+listID+"/order", body, nil)
}

// ReplaceEntries swaps the whole entry array in one transaction. Reserved
// for bulk import/merge: it is last-writer-wins against concurrent edits.
func (c *Client) ReplaceEntries(ctx context.Context, listID string, entries []model.Entry) (model.UpdateResult, error) {
	body := map[string]any{"entries": entries}
	var out model.UpdateResult
	err := c.do(ctx, http.MethodPut, "/lists/"+listID+"/entries", body, &out)
	return out, err
}

// Update applies a diff-shaped write; the server merges it against
// concurrent state at the identity/field level.
func (c *Client) Update(ctx context.Context, listID string, upd model.IncrementalUpdate) (model.UpdateResult, error) {
	var out model.UpdateResult
	err := c.do(ctx, http.MethodPatch, "/lists/"+listID+"/entries", upd, &out)
	return out, err
}

func (c *Client) LockYear(ctx context.Context, year int) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/years/%d/lock", year), nil, nil)
}

func (c *Client) UnlockYear(ctx context.Context, year int) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/years/%d/lock", year), nil, nil)
}

// YearStats is the aggregate row recomputed after writes to a main list.
type YearStats struct {
	Year        int       `json:"year"`
	EntryCount  int       `json:"entryCount"`
	ArtistCount int       `json:"artistCount"`
	ComputedAt  time.Time `json:"computedAt"`
}

func (c *Client) GetYearStats(ctx context.Context, year int) (YearStats, error) {
	var out YearStats
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/years/%d/stats", year), nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-Id", c.userID)
	if c.socketID != "" {
		req.Header.Set("X-Socket-Id", c.socketID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrNetwork, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)
	}

	msg := errorMessage(resp)
	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, msg)
	case http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", ErrValidation, msg)
	default:
		return fmt.Errorf("%s %s: unexpected status %d: %s", method, path, resp.StatusCode, msg)
	}
}

func errorMessage(resp *http.Response) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		return body.Error
	}
	return resp.Status
}
