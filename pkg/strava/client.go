// Package strava uploads activity files to the Strava API and waits for them
// to be processed.
package strava

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	DefaultBaseURL      = "https://www.strava.com/api/v3"
	DefaultPollInterval = 2 * time.Second
	DefaultMaxPolls     = 60

	// StatusProcessing is the status text of an upload Strava is still working on.
	StatusProcessing = "Your activity is still being processed."
)

var (
	// ErrPollLimit is returned when an upload is still processing after MaxPolls status checks.
	ErrPollLimit = errors.New("upload still processing after poll limit")
	// ErrUploadFailed is returned when Strava rejected an uploaded file.
	ErrUploadFailed = errors.New("upload failed")
)

type State int

const (
	Processing State = iota
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Processing:
		return "processing"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Sample:
//
//	{
//		"id": 16486788,
//		"id_str": "16486788",
//		"external_id": "ride_hrm.gpx",
//		"error": null,
//		"status": "Your activity is ready.",
//		"activity_id": 1234567
//	}
type UploadStatus struct {
	ID         int64  `json:"id"`
	ExternalID string `json:"external_id"`
	Status     string `json:"status"`
	Error      string `json:"error"`
	ActivityID int64  `json:"activity_id"`
}

func (u UploadStatus) State() State {
	switch {
	case u.Error != "":
		return Failed
	case u.Status == StatusProcessing:
		return Processing
	}
	return Ready
}

// ActivityURL returns the web page of the created activity, or the empty
// string while no activity exists.
func (u UploadStatus) ActivityURL() string {
	if u.ActivityID == 0 {
		return ""
	}
	return fmt.Sprintf("https://www.strava.com/activities/%d", u.ActivityID)
}

// Sample:
//
//	{
//		"message": "Authorization Error",
//		"errors": [{"resource": "Athlete", "field": "access_token", "code": "invalid"}]
//	}
type Fault struct {
	Message string       `json:"message"`
	Errors  []FaultError `json:"errors"`
}

type FaultError struct {
	Resource string `json:"resource"`
	Field    string `json:"field"`
	Code     string `json:"code"`
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Fault      Fault
}

func (e *APIError) Error() string {
	msg := e.Fault.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	for _, fe := range e.Fault.Errors {
		msg += fmt.Sprintf("; %s.%s: %s", fe.Resource, fe.Field, fe.Code)
	}
	return fmt.Sprintf("strava api returned %d: %s", e.StatusCode, msg)
}

type UploadOptions struct {
	ActivityType ActivityType
	DataType     DataType
	// Private marks the activity as only visible to the athlete.
	Private bool
}

// Client talks to the Strava API. HTTPClient must add the authorization,
// e.g. the client of an oauth.Config.
type Client struct {
	HTTPClient   *http.Client
	BaseURL      string
	PollInterval time.Duration
	MaxPolls     int
}

func NewClient(httpClient *http.Client) *Client {
	return &Client{
		HTTPClient:   httpClient,
		BaseURL:      DefaultBaseURL,
		PollInterval: DefaultPollInterval,
		MaxPolls:     DefaultMaxPolls,
	}
}

// Upload posts the file at path and polls its status until Strava finished
// processing it. A rejected file yields its final status and ErrUploadFailed.
func (c *Client) Upload(ctx context.Context, path string, opts UploadOptions) (*UploadStatus, error) {
	status, err := c.create(ctx, path, opts)
	if err != nil {
		return nil, err
	}
	slog.Info("upload created", "file", path, "upload_id", status.ID, "status", status.Status)

	for polls := 0; status.State() == Processing; polls++ {
		if polls >= c.maxPolls() {
			return status, fmt.Errorf("upload %d: %w", status.ID, ErrPollLimit)
		}
		timer := time.NewTimer(c.pollInterval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return status, fmt.Errorf("error waiting for upload %d: %w", status.ID, ctx.Err())
		case <-timer.C:
		}
		status, err = c.Status(ctx, status.ID)
		if err != nil {
			return nil, err
		}
		slog.Debug("upload status", "upload_id", status.ID, "status", status.Status)
	}

	if status.State() == Failed {
		return status, fmt.Errorf("upload %d: %w: %s", status.ID, ErrUploadFailed, status.Error)
	}
	return status, nil
}

// Status fetches the current status of the upload with the given id.
func (c *Client) Status(ctx context.Context, id int64) (*UploadStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL()+"/uploads/"+strconv.FormatInt(id, 10), nil)
	if err != nil {
		return nil, fmt.Errorf("error creating status request: %w", err)
	}
	var status UploadStatus
	if err := c.do(req, &status); err != nil {
		return nil, fmt.Errorf("error getting upload status: %w", err)
	}
	return &status, nil
}

func (c *Client) create(ctx context.Context, path string, opts UploadOptions) (*UploadStatus, error) {
	body, contentType, err := uploadForm(path, opts)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL()+"/uploads", body)
	if err != nil {
		return nil, fmt.Errorf("error creating upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	var status UploadStatus
	if err := c.do(req, &status); err != nil {
		return nil, fmt.Errorf("error uploading %s: %w", path, err)
	}
	return &status, nil
}

func uploadForm(path string, opts UploadOptions) (*bytes.Buffer, string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("error opening upload file: %w", err)
	}
	defer file.Close()

	dataType := opts.DataType
	if dataType == "" {
		dataType = DataTypeGPX
	}

	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)
	fields := [][2]string{{"data_type", string(dataType)}}
	if opts.Private {
		fields = append(fields, [2]string{"private", "1"})
	}
	if opts.ActivityType != "" {
		fields = append(fields, [2]string{"activity_type", string(opts.ActivityType)})
	}
	for _, f := range fields {
		if err := form.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("error writing form field %s: %w", f[0], err)
		}
	}
	part, err := form.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, "", fmt.Errorf("error creating form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", fmt.Errorf("error reading upload file: %w", err)
	}
	if err := form.Close(); err != nil {
		return nil, "", fmt.Errorf("error closing form: %w", err)
	}
	return body, form.FormDataContentType(), nil
}

func (c *Client) do(req *http.Request, v interface{}) error {
	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode > 299 {
		apiErr := &APIError{StatusCode: res.StatusCode}
		if err := json.NewDecoder(res.Body).Decode(&apiErr.Fault); err != nil {
			slog.Debug("error decoding fault", "error", err)
		}
		return apiErr
	}
	if err := json.NewDecoder(res.Body).Decode(v); err != nil {
		return fmt.Errorf("error unmarshaling response: %w", err)
	}
	return nil
}

func (c *Client) baseURL() string {
	if c.BaseURL == "" {
		return DefaultBaseURL
	}
	return c.BaseURL
}

func (c *Client) pollInterval() time.Duration {
	if c.PollInterval <= 0 {
		return DefaultPollInterval
	}
	return c.PollInterval
}

func (c *Client) maxPolls() int {
	if c.MaxPolls <= 0 {
		return DefaultMaxPolls
	}
	return c.MaxPolls
}
