package function

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/rakunlabs/atgraph/internal/graph"
	"github.com/rakunlabs/atgraph/internal/graph/substitute"
)

// invokeWebSocket opens a connection, sends exactly one JSON message, and
// awaits exactly one response frame within the timeout.
func invokeWebSocket(ctx context.Context, cfg *graph.WebSocketFunction, env substitute.Environment) Result {
	timeout := parseTimeout(cfg.Timeout)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := substString(cfg.URL, env)
	header := http.Header{}
	for k, v := range substStringMap(cfg.Headers, env) {
		header.Set(k, v)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return Result{Success: false, Err: fmt.Errorf("websocket function dial %s: %w", url, err)}
	}
	defer conn.Close()

	message := substString(cfg.Message, env)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(message)); err != nil {
		return Result{Success: false, Err: fmt.Errorf("websocket function write: %w", err)}
	}

	type frame struct {
		data []byte
		err  error
	}
	recv := make(chan frame, 1)
	go func() {
		_, data, err := conn.ReadMessage()
		recv <- frame{data: data, err: err}
	}()

	select {
	case <-ctx.Done():
		return Result{Success: false, Err: fmt.Errorf("websocket function %s timed out after %s", url, timeout)}
	case f := <-recv:
		if f.err != nil {
			return Result{Success: false, Err: fmt.Errorf("websocket function read: %w", f.err)}
		}
		return Result{Success: true, PayloadText: string(f.data)}
	}
}
