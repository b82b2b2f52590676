package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rakunlabs/into"
	"github.com/rakunlabs/logi"
	"github.com/spf13/cobra"
)

var (
	name    = "atgraph"
	version = "v0.0.0"
)

func main() {
	root := &cobra.Command{
		Use:   name,
		Short: "chat-completion pipeline execution engine",
	}

	root.AddCommand(
		newRunCmd(),
		newServeCmd(),
		newValidateCmd(),
		newDeployCmd(),
		newGetCmd(),
		newDeleteCmd(),
		newScaleCmd(),
		newStatusCmd(),
		newContextCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

// bootstrap wraps a long-running command (run, serve) with into's signal
// handling and structured-logger lifecycle.
func bootstrap(run func(ctx context.Context) error) {
	into.Init(run,
		into.WithLogger(logi.InitializeLog(logi.WithCaller(false))),
		into.WithMsgf("%s [%s]", name, version),
	)
}

// exitCodeFor maps a CLI error to a process exit code:
// 0 success, 1 validation/IO/connection failure, 2 not-found.
func exitCodeFor(err error) int {
	var nf *notFoundError
	if asNotFound(err, &nf) {
		return 2
	}
	return 1
}

type notFoundError struct{ msg string }

func (e *notFoundError) Error() string { return e.msg }

func asNotFound(err error, target **notFoundError) bool {
	nf, ok := err.(*notFoundError)
	if ok {
		*target = nf
	}
	return ok
}
