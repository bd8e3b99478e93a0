package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"telecrm/internal/device"
	"telecrm/internal/syncq"
)

// Client talks to the CRM backend. All payloads are flat JSON objects
// carrying the device credentials inline; the recording upload is multipart.

type Client struct {
	baseURL string
	httpc   *http.Client
	log     *slog.Logger
}

func NewClient(baseURL string, timeout time.Duration, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: timeout},
		log:     log,
	}
}

type generalResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type registerRequest struct {
	DeviceName string `json:"deviceName"`
}

type registerResponse struct {
	Success  bool   `json:"success"`
	DeviceID string `json:"deviceId"`
	Token    string `json:"token"`
	Message  string `json:"message,omitempty"`
}

type heartbeatRequest struct {
	DeviceID string `json:"deviceId"`
	Token    string `json:"token"`
}

type callLogRequest struct {
	DeviceID    string `json:"deviceId"`
	Token       string `json:"token"`
	CallID      string `json:"callId"`
	PhoneNumber string `json:"phoneNumber"`
	CallStatus  string `json:"callStatus"`
	Duration    int64  `json:"duration"`  // seconds
	Timestamp   int64  `json:"timestamp"` // epoch millis

	// RecordingURL is always null here; recordings travel separately.
	RecordingURL *string `json:"recordingUrl"`
}

type callOutcomeRequest struct {
	DeviceID          string         `json:"deviceId"`
	Token             string         `json:"token"`
	CallID            string         `json:"callId"`
	CustomerName      string         `json:"customerName,omitempty"`
	Outcome           string         `json:"outcome,omitempty"`
	Remarks           string         `json:"remarks,omitempty"`
	FollowUpDate      *int64         `json:"followUpDate,omitempty"`
	ProductQuantities map[string]int `json:"productQuantities,omitempty"`
	NeedBranding      bool           `json:"needBranding"`
	ReasonForLoss     string         `json:"reasonForLoss,omitempty"`
	Distributor       string         `json:"distributor,omitempty"`
}

// Online reports whether the backend is reachable at all. Any HTTP
// response counts, including errors; only a transport failure is offline.
// Satisfies the sync worker's connectivity gate.
func (c *Client) Online(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

// Register obtains credentials for a fresh device.
func (c *Client) Register(ctx context.Context, deviceName string) (device.Credentials, error) {
	var out registerResponse
	if err := c.postJSON(ctx, "/register", registerRequest{DeviceName: deviceName}, &out); err != nil {
		return device.Credentials{}, err
	}
	if !out.Success {
		return device.Credentials{}, fmt.Errorf("backend: register rejected: %s", out.Message)
	}
	return device.Credentials{DeviceID: out.DeviceID, Token: out.Token}, nil
}

// Heartbeat reports device liveness.
func (c *Client) Heartbeat(ctx context.Context, creds device.Credentials) error {
	var out generalResponse
	if err := c.postJSON(ctx, "/heartbeat", heartbeatRequest{DeviceID: creds.DeviceID, Token: creds.Token}, &out); err != nil {
		return err
	}
	if !out.Success {
		return fmt.Errorf("backend: heartbeat rejected: %s", out.Message)
	}
	return nil
}

// SyncCallLog pushes the initial facts of one call.
func (c *Client) SyncCallLog(ctx context.Context, creds device.Credentials, callID string, p syncq.CallLogPayload) error {
	req := callLogRequest{
		DeviceID:    creds.DeviceID,
		Token:       creds.Token,
		CallID:      callID,
		PhoneNumber: p.PhoneNumber,
		CallStatus:  p.CallStatus,
		Duration:    p.Duration,
		Timestamp:   p.Timestamp,
	}
	var out generalResponse
	if err := c.postJSON(ctx, "/call-log", req, &out); err != nil {
		return err
	}
	if !out.Success {
		return fmt.Errorf("backend: call log rejected: %s", out.Message)
	}
	return nil
}

// SyncOutcome pushes the disposition of one call.
func (c *Client) SyncOutcome(ctx context.Context, creds device.Credentials, callID string, p syncq.OutcomePayload) error {
	req := callOutcomeRequest{
		DeviceID:          creds.DeviceID,
		Token:             creds.Token,
		CallID:            callID,
		CustomerName:      p.CustomerName,
		Outcome:           p.Outcome,
		Remarks:           p.Remarks,
		ProductQuantities: p.ProductQuantities,
		NeedBranding:      p.NeedBranding,
		ReasonForLoss:     p.ReasonForLoss,
		Distributor:       p.Distributor,
	}
	if p.FollowUpDate != 0 {
		req.FollowUpDate = &p.FollowUpDate
	}
	var out generalResponse
	if err := c.postJSON(ctx, "/call-outcome", req, &out); err != nil {
		return err
	}
	if !out.Success {
		return fmt.Errorf("backend: call outcome rejected: %s", out.Message)
	}
	return nil
}

// UploadRecording streams one recording as multipart form data.
func (c *Client) UploadRecording(ctx context.Context, creds device.Credentials, callID, filename string, r io.Reader) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	for k, v := range map[string]string{
		"deviceId": creds.DeviceID,
		"token":    creds.Token,
		"callId":   callID,
	} {
		if err := mw.WriteField(k, v); err != nil {
			return fmt.Errorf("backend: build upload form: %w", err)
		}
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("backend: build upload form: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return fmt.Errorf("backend: read recording: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("backend: build upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload-recording", &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("backend: upload: %w", err)
	}
	defer resp.Body.Close()

	var out generalResponse
	if err := decodeResponse(resp, &out); err != nil {
		return err
	}
	if !out.Success {
		return fmt.Errorf("backend: upload rejected: %s", out.Message)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("backend: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("backend: %s: %w", path, err)
	}
	defer resp.Body.Close()

	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("backend: http %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("backend: decode response: %w", err)
	}
	return nil
}
