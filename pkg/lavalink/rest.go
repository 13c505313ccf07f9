package lavalink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// restClient executes authenticated REST calls against one node. Every
// player mutation, track load and route planner call goes through Do.
type restClient struct {
	baseURL  string
	password string
	client   *http.Client
}

func newRestClient(baseURL, password string, client *http.Client) *restClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &restClient{
		baseURL:  baseURL,
		password: password,
		client:   client,
	}
}

// Do issues a single REST request. A non-2xx response is returned as a
// *RestError carrying the HTTP status and the node-reported message. A 204
// response (and any DELETE) yields a nil body; otherwise the raw body bytes
// are returned and the caller decodes them (JSON, or plain text for the
// version probe).
func (r *restClient) Do(
	ctx context.Context,
	method string,
	path string,
	query url.Values,
	body any,
) ([]byte, error) {
	endpoint := r.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", r.password)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RestError{
			Status:  resp.StatusCode,
			Message: restErrorMessage(data),
		}
	}

	if resp.StatusCode == http.StatusNoContent || method == http.MethodDelete {
		return nil, nil
	}

	return data, nil
}

// restErrorMessage pulls the node's error message out of a failure body,
// falling back to the raw text.
func restErrorMessage(data []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return strings.TrimSpace(string(data))
}
