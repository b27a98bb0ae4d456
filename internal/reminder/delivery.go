package reminder

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

// DeliveryReminder is one alert as known by the delivery API.
type DeliveryReminder struct {
	ID            string `json:"alert_id"`
	ScheduledTime string `json:"scheduled_time"`
	TimezoneID    string `json:"timezone_id"`
	Freq          string `json:"freq"`
}

// CreateRequest schedules one recurring alert. ScheduledAt carries the first
// occurrence as wall-clock time in Timezone.
type CreateRequest struct {
	UserID      string
	ScheduledAt time.Time
	Timezone    string
	Recurrence  Recurrence
	Text        string
}

// DeliveryAPI is the external reminder-delivery boundary. The caller's
// permission token doubles as the bearer credential on every call.
type DeliveryAPI interface {
	Create(ctx context.Context, token string, req CreateRequest) (string, error)
	Cancel(ctx context.Context, token, deliveryID string) error
	List(ctx context.Context, token, userID string) ([]DeliveryReminder, error)
}

// StatusError is a non-2xx delivery-API response. The scheduler maps 403 to
// ErrPermissionDenied and 400 to ErrInvalidReminder; everything else is
// treated as transient.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("delivery api returned %d: %s", e.Code, e.Body)
}

// Client talks to the delivery service over its HTTP API.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient constructs the client.
func NewClient(endpoint string, timeout time.Duration) *Client {
	return &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type alertRecurrence struct {
	Freq  string   `json:"freq"`
	ByDay []string `json:"by_day,omitempty"`
}

type alertTrigger struct {
	Type          string          `json:"type"`
	ScheduledTime string          `json:"scheduled_time"`
	TimezoneID    string          `json:"timezone_id"`
	Recurrence    alertRecurrence `json:"recurrence"`
}

type createAlertRequest struct {
	RequestTime string       `json:"request_time"`
	UserID      string       `json:"user_id"`
	Trigger     alertTrigger `json:"trigger"`
	Text        string       `json:"text"`
}

type createAlertResponse struct {
	AlertID string `json:"alert_id"`
}

type listAlertsResponse struct {
	Alerts []DeliveryReminder `json:"alerts"`
}

func recurrenceFor(rec Recurrence) alertRecurrence {
	if rec == RecurWeekdays {
		return alertRecurrence{Freq: "WEEKLY", ByDay: []string{"MO", "TU", "WE", "TH", "FR"}}
	}
	return alertRecurrence{Freq: "DAILY"}
}

// Create schedules a recurring alert and returns its delivery id.
func (c *Client) Create(ctx context.Context, token string, req CreateRequest) (string, error) {
	payload := createAlertRequest{
		RequestTime: time.Now().UTC().Format(time.RFC3339),
		UserID:      req.UserID,
		Trigger: alertTrigger{
			Type:          "SCHEDULED_ABSOLUTE",
			ScheduledTime: req.ScheduledAt.Format("2006-01-02T15:04:05"),
			TimezoneID:    req.Timezone,
			Recurrence:    recurrenceFor(req.Recurrence),
		},
		Text: req.Text,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/v1/alerts/reminders", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", newStatusError(resp)
	}
	var created createAlertResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("decode create response: %w", err)
	}
	return created.AlertID, nil
}

// Cancel removes one alert by delivery id.
func (c *Client) Cancel(ctx context.Context, token, deliveryID string) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.endpoint+"/v1/alerts/reminders/"+url.PathEscape(deliveryID), nil)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return newStatusError(resp)
	}
	return nil
}

// List returns every alert the delivery service holds for the user.
func (c *Client) List(ctx context.Context, token, userID string) ([]DeliveryReminder, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/v1/alerts/reminders?user_id="+url.QueryEscape(userID), nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newStatusError(resp)
	}
	var listed listAlertsResponse
	if err := json.NewDecoder(resp.Body).Decode(&listed); err != nil {
		return nil, fmt.Errorf("decode list response: %w", err)
	}
	return listed.Alerts, nil
}

func newStatusError(resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

var _ DeliveryAPI = (*Client)(nil)
