package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"syscall"
	"time"

	"github.com/pscheid92/livefeed/internal/platform/retry"
)

// listenWithRetry probes consecutive ports starting at port. Only
// "address in use" moves on to the next port; any other error is final.
func listenWithRetry(ctx context.Context, port, attempts int) (net.Listener, error) {
	policy := retry.Policy{
		MaxAttempts: attempts,
		OnRetry: func(attempt int, err error, _ time.Duration) {
			slog.Warn("Port in use, trying next", "port", port+attempt-1, "next_port", port+attempt, "error", err)
		},
	}

	var lc net.ListenConfig
	ln, err := retry.Do(ctx, policy, classifyListenError, func(attempt int) (net.Listener, error) {
		addr := ":" + strconv.Itoa(port+attempt-1)
		return lc.Listen(ctx, "tcp", addr)
	})
	if err != nil {
		return nil, fmt.Errorf("no free port in %d-%d: %w", port, port+attempts-1, err)
	}
	return ln, nil
}

func classifyListenError(err error) retry.Action {
	if errors.Is(err, syscall.EADDRINUSE) {
		return retry.Retry
	}
	return retry.Stop
}
