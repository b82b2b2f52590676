// Package cliclient is the HTTP client the atgraph CLI uses to talk to a
// running control plane's REST API: build a klient.Client, set bearer
// auth, decode a JSON envelope.
package cliclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/worldline-go/klient"
)

// Client talks to one control plane's REST API.
type Client struct {
	address string
	token   string
	http    *klient.Client
}

// New builds a Client against address (e.g. "http://localhost:8080") using
// token as the bearer admin token, if set.
func New(address, token string) (*Client, error) {
	c, err := klient.New(klient.WithDisableBaseURLCheck(true))
	if err != nil {
		return nil, fmt.Errorf("build cli client: %w", err)
	}
	return &Client{address: strings.TrimSuffix(address, "/"), token: token, http: c}, nil
}

// errorEnvelope mirrors internal/server's error response shape.
type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.address+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode/100 != 2 {
		var env errorEnvelope
		if json.Unmarshal(payload, &env) == nil && env.Error.Message != "" {
			return fmt.Errorf("%s: %s", env.Error.Code, env.Error.Message)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) Status(ctx context.Context, out any) error {
	return c.do(ctx, http.MethodGet, "/v1/status", nil, out)
}

func (c *Client) Namespaces(ctx context.Context, out any) error {
	return c.do(ctx, http.MethodGet, "/v1/namespaces", nil, out)
}

func (c *Client) ListPipelines(ctx context.Context, namespace string, all bool, out any) error {
	path := "/v1/pipelines?all=" + boolStr(all)
	if namespace != "" {
		path += "&namespace=" + namespace
	}
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) DeployPipeline(ctx context.Context, name, namespace string, manifest []byte, out any) error {
	path := fmt.Sprintf("/v1/pipelines?name=%s&namespace=%s", name, namespace)
	return c.do(ctx, http.MethodPost, path, manifest, out)
}

func (c *Client) DeletePipeline(ctx context.Context, namespace, name string, out any) error {
	return c.do(ctx, http.MethodDelete, "/v1/pipelines/"+namespace+"/"+name, nil, out)
}

func (c *Client) ScalePipeline(ctx context.Context, namespace, name string, replicas int, out any) error {
	body, err := json.Marshal(map[string]int{"replicas": replicas})
	if err != nil {
		return fmt.Errorf("encode scale request: %w", err)
	}
	return c.do(ctx, http.MethodPatch, "/v1/pipelines/"+namespace+"/"+name, body, out)
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
