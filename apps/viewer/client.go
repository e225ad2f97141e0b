package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sethvargo/go-retry"

	"github.com/trezcool/masomo-materials/core/extension"
	"github.com/trezcool/masomo-materials/core/material"
)

// apiError is a non-2xx answer of the API.
type apiError struct {
	Code    int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Code, http.StatusText(e.Code), e.Message)
}

func (e *apiError) serverFailed() bool { return e.Code >= http.StatusInternalServerError }

func isAPIError(err error, code int) bool {
	apiErr, ok := errors.Cause(err).(*apiError)
	return ok && apiErr.Code == code
}

// apiClient talks to the /v1 API on behalf of one student.
type apiClient struct {
	baseURL string
	http    *http.Client
	token   string
	backoff func() retry.Backoff
}

func newAPIClient(baseURL string, timeout time.Duration) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(3, retry.NewExponential(200*time.Millisecond))
		},
	}
}

func (c *apiClient) login(ctx context.Context, username, password string) error {
	body := struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}{username, password}
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/users/login", body, &resp); err != nil {
		return errors.Wrap(err, "logging in")
	}
	c.token = resp.Token
	return nil
}

func (c *apiClient) start(ctx context.Context, materialID string) (material.StartResult, error) {
	var res material.StartResult
	if err := c.do(ctx, http.MethodPost, "/v1/materials/"+materialID+"/start", nil, &res); err != nil {
		return res, errors.Wrap(err, "starting access window")
	}
	return res, nil
}

func (c *apiClient) extend(ctx context.Context, materialID, reason string) (string, error) {
	body := struct {
		Reason string `json:"reason"`
	}{reason}
	var resp struct {
		RequestID string `json:"request_id"`
	}
	attempts, err := c.send(ctx, http.MethodPost, "/v1/materials/"+materialID+"/extend", body, &resp)
	if err != nil && attempts > 1 && isPendingExists(err) {
		// an earlier attempt was stored but its answer got lost
		id, lookupErr := c.pendingRequestID(ctx, materialID)
		if lookupErr != nil {
			return "", errors.Wrap(lookupErr, "requesting extension")
		}
		if id != "" {
			return id, nil
		}
	}
	if err != nil {
		return "", errors.Wrap(err, "requesting extension")
	}
	return resp.RequestID, nil
}

// pendingRequestID returns the student's pending request on a material, if any.
func (c *apiClient) pendingRequestID(ctx context.Context, materialID string) (string, error) {
	q := url.Values{"material_id": {materialID}, "status": {string(extension.StatusPending)}}
	var requests []extension.Request
	if err := c.do(ctx, http.MethodGet, "/v1/extension-requests?"+q.Encode(), nil, &requests); err != nil {
		return "", errors.Wrap(err, "looking up pending request")
	}
	if len(requests) == 0 {
		return "", nil
	}
	return requests[0].ID, nil
}

func isPendingExists(err error) bool {
	apiErr, ok := errors.Cause(err).(*apiError)
	return ok && apiErr.Code == http.StatusBadRequest && apiErr.Message == extension.ErrPendingExists.Error()
}

func (c *apiClient) do(ctx context.Context, method, path string, in, out interface{}) error {
	_, err := c.send(ctx, method, path, in, out)
	return err
}

// send sends one JSON request and reports how many attempts it took. Only transport
// failures are retried; an answer from the server, 5xx included, is final.
// A resent request may have been applied already: callers of non-idempotent
// endpoints check the attempts.
func (c *apiClient) send(ctx context.Context, method, path string, in, out interface{}) (int, error) {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return 0, errors.Wrap(err, "encoding request")
		}
	}

	attempts := 0
	err := retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		attempts++
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return errors.Wrap(err, "building request")
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return retry.RetryableError(err)
		}
		if resp.StatusCode >= http.StatusBadRequest {
			return &apiError{Code: resp.StatusCode, Message: errorMessage(data)}
		}
		if out == nil {
			return nil
		}
		return errors.Wrap(json.Unmarshal(data, out), "decoding response")
	})
	return attempts, err
}

// errorMessage flattens `{"error": msg}` and `{"field": msg, ...}` bodies.
func errorMessage(data []byte) string {
	var fields map[string]string
	if err := json.Unmarshal(data, &fields); err != nil || len(fields) == 0 {
		return strings.TrimSpace(string(data))
	}
	if msg, ok := fields["error"]; ok {
		return msg
	}
	msgs := make([]string, 0, len(fields))
	for field, msg := range fields {
		msgs = append(msgs, field+": "+msg)
	}
	sort.Strings(msgs)
	return strings.Join(msgs, "; ")
}
