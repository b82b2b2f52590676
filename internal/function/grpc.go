package function

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rakunlabs/atgraph/internal/graph"
	"github.com/rakunlabs/atgraph/internal/graph/substitute"
)

// invokeGRPC performs a generic unary call without generated stubs: the
// request/response payloads are carried as google.protobuf.Struct, which
// lets a single client support any service without codegen. This is the
// narrowest way to exercise the real grpc-go client without pulling in a
// protoc-generated package for every possible downstream service (see
// DESIGN.md).
func invokeGRPC(ctx context.Context, cfg *graph.GRPCFunction, env substitute.Environment) Result {
	timeout := parseTimeout(cfg.Timeout)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	address := substString(cfg.Address, env)
	conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return Result{Success: false, Err: fmt.Errorf("grpc dial %s: %w", address, err)}
	}
	defer conn.Close()

	reqText := substString(cfg.Request, env)
	reqStruct := &structpb.Struct{}
	if reqText != "" {
		if err := protojson.Unmarshal([]byte(reqText), reqStruct); err != nil {
			var generic map[string]any
			if jerr := json.Unmarshal([]byte(reqText), &generic); jerr == nil {
				reqStruct, _ = structpb.NewStruct(generic)
			} else {
				return Result{Success: false, Err: fmt.Errorf("grpc function: invalid request payload: %w", err)}
			}
		}
	}

	respStruct := &structpb.Struct{}
	fullMethod := fmt.Sprintf("/%s/%s", cfg.Service, cfg.Method)
	if err := conn.Invoke(ctx, fullMethod, reqStruct, respStruct); err != nil {
		return Result{Success: false, Err: fmt.Errorf("grpc call %s: %w", fullMethod, err)}
	}

	payload, err := protojson.Marshal(respStruct)
	if err != nil {
		return Result{Success: false, Err: fmt.Errorf("grpc function: marshal response: %w", err)}
	}

	return Result{Success: true, PayloadText: string(payload)}
}
