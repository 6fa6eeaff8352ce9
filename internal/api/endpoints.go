package api

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"roadguard/internal/models"
)

// TokenResponse is the body of a successful login
type TokenResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	Role        models.Role `json:"role"`
}

// Message is the {"message": ...} acknowledgement most mutations return
type Message struct {
	Message string `json:"message"`
}

// ── Auth ────────────────────────────────────────────────────────────────

// Login exchanges credentials for an access token (OAuth2 password form)
func (c *Client) Login(ctx context.Context, email, password string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("username", email)
	form.Set("password", password)

	var out TokenResponse
	err := c.do(ctx, http.MethodPost, "/token", strings.NewReader(form.Encode()),
		"application/x-www-form-urlencoded", &out)
	if err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, fmt.Errorf("login: response carried no access token")
	}
	return &out, nil
}

// Register submits a self-service account request; it stays pending until
// an admin approves it.
func (c *Client) Register(ctx context.Context, u models.NewUser) (*Message, error) {
	var out Message
	if err := c.sendJSON(ctx, http.MethodPost, "/register", u, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ── Users ───────────────────────────────────────────────────────────────

func (c *Client) ListUsers(ctx context.Context) ([]models.User, error) {
	var out []models.User
	return out, c.getJSON(ctx, "/users/", &out)
}

func (c *Client) CreateUser(ctx context.Context, u models.NewUser) (*models.User, error) {
	var out models.User
	if err := c.sendJSON(ctx, http.MethodPost, "/users/", u, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateApproval moves a user to one of the three approval states
func (c *Client) UpdateApproval(ctx context.Context, id string, status models.ApprovalStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid approval status %q", status)
	}
	body := map[string]string{"approval_status": string(status)}
	return c.sendJSON(ctx, http.MethodPatch, "/users/"+escape(id)+"/approval", body, nil)
}

func (c *Client) DeleteUser(ctx context.Context, id string) error {
	return c.sendJSON(ctx, http.MethodDelete, "/users/"+escape(id), nil, nil)
}

// ── Cameras & detection ─────────────────────────────────────────────────

func (c *Client) ListCameras(ctx context.Context) ([]models.Camera, error) {
	var out []models.Camera
	return out, c.getJSON(ctx, "/cameras/", &out)
}

func (c *Client) CreateCamera(ctx context.Context, cam models.NewCamera) (*models.Camera, error) {
	var out models.Camera
	if err := c.sendJSON(ctx, http.MethodPost, "/cameras/", cam, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteCamera(ctx context.Context, id string) error {
	return c.sendJSON(ctx, http.MethodDelete, "/cameras/"+escape(id), nil, nil)
}

// StartDetection starts the server-side detection job for a camera
func (c *Client) StartDetection(ctx context.Context, cameraID string) (*Message, error) {
	var out Message
	if err := c.sendJSON(ctx, http.MethodPost, "/detection/start/"+escape(cameraID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StopDetection stops the server-side detection job for a camera
func (c *Client) StopDetection(ctx context.Context, cameraID string) (*Message, error) {
	var out Message
	if err := c.sendJSON(ctx, http.MethodPost, "/detection/stop/"+escape(cameraID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ── Alerts ──────────────────────────────────────────────────────────────

// ListAlerts returns alerts newest first
func (c *Client) ListAlerts(ctx context.Context) ([]models.Alert, error) {
	var out []models.Alert
	return out, c.getJSON(ctx, "/alerts/", &out)
}

func (c *Client) CreateAlert(ctx context.Context, a models.NewAlert) (*models.Alert, error) {
	var out models.Alert
	if err := c.sendJSON(ctx, http.MethodPost, "/alerts/", a, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteAlert(ctx context.Context, id string) error {
	return c.sendJSON(ctx, http.MethodDelete, "/alerts/"+escape(id), nil, nil)
}

func (c *Client) DeleteAllAlerts(ctx context.Context) error {
	return c.sendJSON(ctx, http.MethodDelete, "/alerts/all/delete", nil, nil)
}

// ── Streams ─────────────────────────────────────────────────────────────

// ListStreams returns all streams with StreamURL resolved against BaseURL
func (c *Client) ListStreams(ctx context.Context) ([]models.Stream, error) {
	var out []models.Stream
	if err := c.getJSON(ctx, "/streams/", &out); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].StreamURL = c.ResolveURL(out[i].StreamURL)
	}
	return out, nil
}

func (c *Client) StopStream(ctx context.Context, id string) error {
	return c.sendJSON(ctx, http.MethodPatch, "/streams/"+escape(id)+"/stop", nil, nil)
}

func (c *Client) DeleteStream(ctx context.Context, id string) error {
	return c.sendJSON(ctx, http.MethodDelete, "/streams/"+escape(id), nil, nil)
}

func (c *Client) DeleteAllStreams(ctx context.Context) error {
	return c.sendJSON(ctx, http.MethodDelete, "/streams/all/delete", nil, nil)
}

// UploadVideo streams a video file to the API as multipart form field
// "file". The returned stream's StreamURL is resolved to an absolute URL.
func (c *Client) UploadVideo(ctx context.Context, filename string, video io.Reader) (*models.Stream, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile("file", filepath.Base(filename))
		if err == nil {
			_, err = io.Copy(part, video)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	upload := *c
	upload.HTTP = withTimeout(c.HTTP, UploadTimeout)

	var out models.Stream
	if err := upload.do(ctx, http.MethodPost, "/streams/upload", pr, mw.FormDataContentType(), &out); err != nil {
		pr.CloseWithError(err)
		return nil, err
	}
	out.StreamURL = c.ResolveURL(out.StreamURL)
	return &out, nil
}

func withTimeout(hc *http.Client, timeout time.Duration) *http.Client {
	if hc.Timeout == 0 || hc.Timeout >= timeout {
		return hc
	}
	c := *hc
	c.Timeout = timeout
	return &c
}
