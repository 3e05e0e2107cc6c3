package scraper

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Run lifecycle events sent to the webhook.
const (
	EventRunSucceeded = "ACTOR.RUN.SUCCEEDED"
	EventRunFailed    = "ACTOR.RUN.FAILED"
	EventRunAborted   = "ACTOR.RUN.ABORTED"
	EventRunTimedOut  = "ACTOR.RUN.TIMED_OUT"
)

// InputRecordKey is the key-value store record holding a run's input.
const InputRecordKey = "INPUT"

var ErrNotFound = errors.New("scraper resource not found")

// Run is the handle returned when a run starts.
type Run struct {
	ID                     string `json:"id"`
	ActorID                string `json:"actId"`
	Status                 string `json:"status"`
	DefaultDatasetID       string `json:"defaultDatasetId"`
	DefaultKeyValueStoreID string `json:"defaultKeyValueStoreId"`
}

// Client talks to the external scrape engine's REST API.
type Client struct {
	baseURL    string
	token      string
	webhookURL string
	client     *http.Client
}

func NewClient(baseURL, token, webhookURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
}

// StartRun starts actorID with input and registers the completion webhook.
// It returns as soon as the run is accepted.
func (c *Client) StartRun(ctx context.Context, actorID string, input interface{}) (*Run, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	if c.webhookURL != "" {
		hooks, err := json.Marshal([]map[string]interface{}{{
			"eventTypes": []string{EventRunSucceeded, EventRunFailed, EventRunAborted, EventRunTimedOut},
			"requestUrl": c.webhookURL,
		}})
		if err != nil {
			return nil, err
		}
		q.Set("webhooks", base64.StdEncoding.EncodeToString(hooks))
	}

	endpoint := fmt.Sprintf("%s/acts/%s/runs", c.baseURL, url.PathEscape(actorID))
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	var envelope struct {
		Data Run `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, endpoint, bytes.NewReader(body), &envelope); err != nil {
		return nil, fmt.Errorf("start run %s: %w", actorID, err)
	}
	if envelope.Data.ID == "" {
		return nil, fmt.Errorf("start run %s: response has no run id", actorID)
	}
	return &envelope.Data, nil
}

// GetDatasetItems returns every item of a dataset as raw JSON.
func (c *Client) GetDatasetItems(ctx context.Context, datasetID string) ([]json.RawMessage, error) {
	endpoint := fmt.Sprintf("%s/datasets/%s/items?format=json&clean=true", c.baseURL, url.PathEscape(datasetID))

	var items []json.RawMessage
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &items); err != nil {
		return nil, fmt.Errorf("dataset %s: %w", datasetID, err)
	}
	return items, nil
}

// GetRecord decodes a key-value store record into out.
func (c *Client) GetRecord(ctx context.Context, storeID, key string, out interface{}) error {
	endpoint := fmt.Sprintf("%s/key-value-stores/%s/records/%s", c.baseURL, url.PathEscape(storeID), url.PathEscape(key))
	if err := c.do(ctx, http.MethodGet, endpoint, nil, out); err != nil {
		return fmt.Errorf("record %s/%s: %w", storeID, key, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("scraper api error: %d %s", resp.StatusCode, bytes.TrimSpace(detail))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
