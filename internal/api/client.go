// Package api is the HTTP client for the race backend's room endpoints.
// The backend is an external collaborator; this package only consumes its
// request/response interface.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/velotype/racer/internal/models"
)

// ErrFetchFailed wraps every request failure. A failed initial room fetch
// is fatal to session start.
var ErrFetchFailed = errors.New("api: request failed")

// Client calls the race backend REST API.
type Client struct {
	baseURL string
	client  *http.Client
	headers map[string]string
}

// NewClient creates a client against the given backend base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

// SetHeader sets a header sent with every request.
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// SetTimeout overrides the request timeout.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.client.Timeout = timeout
}

func (c *Client) makeRequest(ctx context.Context, method, endpoint string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrFetchFailed, err)
	}

	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %v", ErrFetchFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d: %s", ErrFetchFailed, resp.StatusCode, string(responseBody))
	}

	return responseBody, nil
}

func (c *Client) getRoom(ctx context.Context, endpoint string) (*models.Room, error) {
	data, err := c.makeRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	var room models.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, fmt.Errorf("%w: failed to decode room: %v", ErrFetchFailed, err)
	}
	return &room, nil
}

func (c *Client) postRoom(ctx context.Context, endpoint string, payload any) (*models.Room, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to encode request: %v", ErrFetchFailed, err)
		}
		body = bytes.NewReader(data)
	}
	data, err := c.makeRequest(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, err
	}
	var room models.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, fmt.Errorf("%w: failed to decode room: %v", ErrFetchFailed, err)
	}
	return &room, nil
}

// CreateRoomRequest creates a room owned by the given nickname. Text is
// optional; when empty the backend generates a passage.
type CreateRoomRequest struct {
	Nickname string `json:"nickname"`
	Text     string `json:"text,omitempty"`
}

// JoinRoomRequest joins an existing room by its human-entry code.
type JoinRoomRequest struct {
	Nickname string `json:"nickname"`
	RoomCode string `json:"roomCode"`
}

// CreateRoom creates a new room and returns it with the creator joined.
func (c *Client) CreateRoom(ctx context.Context, req CreateRoomRequest) (*models.Room, error) {
	return c.postRoom(ctx, "/api/room/create", req)
}

// JoinRoom joins a room by code and returns the created player record.
func (c *Client) JoinRoom(ctx context.Context, req JoinRoomRequest) (*models.Player, error) {
	data, err := c.makeRequest(ctx, http.MethodPost, "/api/room/join", bytes.NewReader(mustJSON(req)))
	if err != nil {
		return nil, err
	}
	var player models.Player
	if err := json.Unmarshal(data, &player); err != nil {
		return nil, fmt.Errorf("%w: failed to decode player: %v", ErrFetchFailed, err)
	}
	return &player, nil
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

// GetRoom fetches a room by id.
func (c *Client) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	return c.getRoom(ctx, "/api/room/"+url.PathEscape(roomID))
}

// GetRoomByCode fetches a room by its human-entry code.
func (c *Client) GetRoomByCode(ctx context.Context, code string) (*models.Room, error) {
	return c.getRoom(ctx, "/api/room/code/"+url.PathEscape(code))
}

// GetRooms lists open rooms.
func (c *Client) GetRooms(ctx context.Context) ([]models.Room, error) {
	data, err := c.makeRequest(ctx, http.MethodGet, "/api/rooms", nil)
	if err != nil {
		return nil, err
	}
	var rooms []models.Room
	if err := json.Unmarshal(data, &rooms); err != nil {
		return nil, fmt.Errorf("%w: failed to decode rooms: %v", ErrFetchFailed, err)
	}
	return rooms, nil
}

// StartGame asks the backend to start the round.
func (c *Client) StartGame(ctx context.Context, roomID string) (*models.Room, error) {
	return c.postRoom(ctx, "/api/room/"+url.PathEscape(roomID)+"/start", nil)
}
