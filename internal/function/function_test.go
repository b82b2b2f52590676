package function

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rakunlabs/atgraph/internal/graph"
	"github.com/rakunlabs/atgraph/internal/graph/substitute"
)

func TestInvoke_REST_SubstitutesURLAndBody(t *testing.T) {
	var gotPath, gotBody, gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotHeader = r.Header.Get("X-Token")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	fn := graph.Function{
		Kind: graph.FunctionREST,
		REST: &graph.RESTFunction{
			Method:  http.MethodPost,
			URL:     srv.URL + "/$ROUTE",
			Headers: map[string]string{"X-Token": "$TOKEN"},
			Body:    `{"id":"$ID"}`,
		},
	}
	env := substitute.MapEnv{"ROUTE": "notify", "TOKEN": "abc123", "ID": "42"}

	res := Invoke(context.Background(), fn, env)
	if !res.Success {
		t.Fatalf("Invoke failed: %v", res.Err)
	}
	if gotPath != "/notify" {
		t.Fatalf("path = %q, want /notify", gotPath)
	}
	if gotHeader != "abc123" {
		t.Fatalf("header = %q, want abc123", gotHeader)
	}
	if gotBody != `{"id":"42"}` {
		t.Fatalf("body = %q, want {\"id\":\"42\"}", gotBody)
	}
	if res.PayloadText != `{"ok":true}` {
		t.Fatalf("PayloadText = %q", res.PayloadText)
	}
}

func TestInvoke_REST_NonSuccessStatusIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	fn := graph.Function{
		Kind: graph.FunctionREST,
		REST: &graph.RESTFunction{Method: http.MethodGet, URL: srv.URL},
	}

	res := Invoke(context.Background(), fn, substitute.MapEnv{})
	if res.Success {
		t.Fatal("expected a 500 response to be reported as a failure")
	}
}

func TestInvoke_Shell_SubstitutesArgsAndEnv(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell functions assume a POSIX shell")
	}

	fn := graph.Function{
		Name: "greet",
		Kind: graph.FunctionShell,
		Shell: &graph.ShellFunction{
			Command: "/bin/sh",
			Args:    []string{"-c", "echo $GREETING-${NAME}"},
			Env:     map[string]string{"NAME": "$WHO"},
		},
	}
	env := substitute.MapEnv{"WHO": "atgraph", "GREETING": "hi"}

	res := Invoke(context.Background(), fn, env)
	if !res.Success {
		t.Fatalf("Invoke failed: %v", res.Err)
	}
	if strings.TrimSpace(res.PayloadText) != "hi-atgraph" {
		t.Fatalf("PayloadText = %q, want %q", res.PayloadText, "hi-atgraph")
	}
}

func TestInvoke_Shell_NonZeroExitIsFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell functions assume a POSIX shell")
	}

	fn := graph.Function{
		Kind:  graph.FunctionShell,
		Shell: &graph.ShellFunction{Command: "/bin/sh", Args: []string{"-c", "exit 7"}},
	}

	res := Invoke(context.Background(), fn, substitute.MapEnv{})
	if res.Success {
		t.Fatal("expected a non-zero exit to be reported as a failure")
	}
}

func TestInvoke_WebSocket_SendsAndReceivesOneFrame(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Fatalf("upgrade: %v", err)
		}
		defer conn.Close()
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		conn.WriteMessage(websocket.TextMessage, append([]byte("echo:"), msg...))
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	fn := graph.Function{
		Kind:      graph.FunctionWebSocket,
		WebSocket: &graph.WebSocketFunction{URL: url, Message: "$PAYLOAD"},
	}
	env := substitute.MapEnv{"PAYLOAD": "hello"}

	res := Invoke(context.Background(), fn, env)
	if !res.Success {
		t.Fatalf("Invoke failed: %v", res.Err)
	}
	if res.PayloadText != "echo:hello" {
		t.Fatalf("PayloadText = %q, want echo:hello", res.PayloadText)
	}
}

func TestInvoke_WebSocket_DialFailureIsFailure(t *testing.T) {
	fn := graph.Function{
		Kind:      graph.FunctionWebSocket,
		WebSocket: &graph.WebSocketFunction{URL: "ws://127.0.0.1:1/unreachable", Timeout: "100ms"},
	}
	res := Invoke(context.Background(), fn, substitute.MapEnv{})
	if res.Success {
		t.Fatal("expected dialing an unreachable websocket endpoint to fail")
	}
}

func TestInvoke_GRPC_GenericUnaryCallRoundTrips(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	srv := grpc.NewServer(grpc.UnknownServiceHandler(func(_ any, stream grpc.ServerStream) error {
		var req structpb.Struct
		if err := stream.RecvMsg(&req); err != nil {
			return err
		}
		resp, _ := structpb.NewStruct(map[string]any{"received": req.Fields["name"].GetStringValue()})
		return stream.SendMsg(resp)
	}))
	go srv.Serve(lis)
	defer srv.Stop()

	fn := graph.Function{
		Kind: graph.FunctionGRPC,
		GRPC: &graph.GRPCFunction{
			Address: lis.Addr().String(),
			Service: "atgraph.test.Echo",
			Method:  "Call",
			Request: `{"name":"$WHO"}`,
			Timeout: "2s",
		},
	}
	env := substitute.MapEnv{"WHO": "pipeline"}

	res := Invoke(context.Background(), fn, env)
	if !res.Success {
		t.Fatalf("Invoke failed: %v", res.Err)
	}

	var out structpb.Struct
	if err := protojson.Unmarshal([]byte(res.PayloadText), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.Fields["received"].GetStringValue() != "pipeline" {
		t.Fatalf("response = %+v, want received=pipeline", out.Fields)
	}
}

func TestInvoke_GRPC_UnreachableAddressIsFailure(t *testing.T) {
	fn := graph.Function{
		Kind: graph.FunctionGRPC,
		GRPC: &graph.GRPCFunction{Address: "127.0.0.1:1", Service: "x", Method: "y", Timeout: "200ms"},
	}
	res := Invoke(context.Background(), fn, substitute.MapEnv{})
	if res.Success {
		t.Fatal("expected an unreachable grpc address to fail")
	}
}

func TestInvoke_UnknownKind(t *testing.T) {
	res := Invoke(context.Background(), graph.Function{Kind: "bogus"}, substitute.MapEnv{})
	if res.Success {
		t.Fatal("expected an unknown function kind to fail")
	}
	var uerr *UnknownKindError
	if !errors.As(res.Err, &uerr) {
		t.Fatalf("expected UnknownKindError, got %T", res.Err)
	}
}
