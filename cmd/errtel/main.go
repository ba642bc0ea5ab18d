// Command errtel replays a JSON-lines file of failure reports through the
// error telemetry engine, then prints statistics, recurring errors, a pattern
// analysis, or a diagnostic snapshot, or exports the stored records.
//
// Each input line is one report:
//
//	{"timestamp":"2026-04-10T09:00:00Z","severity":"error","category":"network",
//	 "component":"checkout","message":"upstream returned 502",
//	 "failureInfo":{"type":"*url.Error","message":"502"}}
//
// Only "message" is required. Blank lines and lines starting with '#' are
// skipped.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
