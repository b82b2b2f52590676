package function

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/cenkalti/backoff/v4"
	"github.com/worldline-go/klient"

	"github.com/rakunlabs/atgraph/internal/graph"
	"github.com/rakunlabs/atgraph/internal/graph/substitute"
)

func invokeREST(ctx context.Context, cfg *graph.RESTFunction, env substitute.Environment) Result {
	method := cfg.Method
	if method == "" {
		method = http.MethodGet
	}

	url := substString(cfg.URL, env)
	headers := substStringMap(cfg.Headers, env)

	var body []byte
	if cfg.Body != "" {
		body = []byte(substString(cfg.Body, env))
	}

	timeout := parseTimeout(cfg.Timeout)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := klient.New(
		klient.WithDisableBaseURLCheck(true),
		klient.WithDisableEnvValues(true),
		klient.WithDisableRetry(!cfg.Retry),
	)
	if err != nil {
		return Result{Success: false, Err: fmt.Errorf("build rest client: %w", err)}
	}

	doOnce := func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		if len(body) > 0 && req.Header.Get("Content-Type") == "" {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := client.HTTP.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode/100 != 2 {
			resp.Body.Close()
			return nil, fmt.Errorf("rest function: status %d", resp.StatusCode)
		}
		return resp, nil
	}

	var resp *http.Response
	if cfg.Retry {
		bo := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
		err = backoff.Retry(func() error {
			r, rerr := doOnce()
			if rerr != nil {
				return rerr
			}
			resp = r
			return nil
		}, bo)
	} else {
		resp, err = doOnce()
	}
	if err != nil {
		return Result{Success: false, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return Result{Success: false, Err: fmt.Errorf("read rest response: %w", err)}
	}

	return Result{Success: true, PayloadText: string(payload)}
}
