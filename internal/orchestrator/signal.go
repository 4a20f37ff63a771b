package orchestrator

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/banksean/toast/internal/interrupt"
)

// installSignalHandler mirrors the teacher's sand/mux.go waitForShutdown:
// a single goroutine selecting on a signal channel. Unlike the teacher
// (which shuts the daemon down), this handler never exits the process or
// kills anything directly — per spec.md §5 it only flips the shared
// interrupt flag and prints a newline, leaving the running container to
// receive the signal itself via its terminal's process group. The
// returned func stops the handler and must be called before Run returns.
func installSignalHandler(ctx context.Context) func() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-sigChan:
				interrupt.Set()
				fmt.Println()
			}
		}
	}()

	return func() {
		signal.Stop(sigChan)
		close(done)
	}
}
