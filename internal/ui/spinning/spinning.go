// Package spinning provides a spinning symbol to display while the AI is thinking, and the
// graceful interruption used by all programs.
package spinning

import (
	"context"
	"fmt"
	"k8s.io/klog/v2"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// Spinning displays a spinning symbol until Done is called.
type Spinning struct {
	wg     sync.WaitGroup
	cancel func()
}

var (
	ThemeAscii = []rune(`|/-\`)
	ThemeDots  = []rune("⠋⠙⠹⠸⠼⠴⠦⠧⠇⠏")

	// Theme defaults to ThemeDots, but it can be set to anything else.
	Theme = ThemeDots
)

// WithSafeInterrupt returns a context that is cancelled on SIGINT (Ctrl+C) or SIGTERM, so the program
// can finish what it is doing (e.g. flush the games in progress) and exit.
// If the program hasn't exited after gracePeriod, the terminal is reset and the program exits.
func WithSafeInterrupt(ctx context.Context, gracePeriod time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		var s os.Signal
		select {
		case s = <-sigChan:
		case <-ctx.Done():
			signal.Stop(sigChan)
			return
		}
		fmt.Println()
		klog.Errorf("Got interrupted (signal %q), shutting down... (%s)", s, gracePeriod)
		cancel()

		// Wait for gracePeriod before exiting.
		time.Sleep(gracePeriod)
		Reset()
		klog.Fatalf("Graceful shutting down %s period expired, exiting.", gracePeriod)
	}()
	return ctx, cancel
}

// Reset terminal: make cursor visible, restore default terminal colors.
func Reset() {
	fmt.Print("\033[?25h\033[39;49;0m\n")
}

// New starts a spinning display that runs on a separate goroutine.
// It stops when Spinning.Done is called, or when ctx is cancelled.
func New(ctx context.Context) *Spinning {
	s := &Spinning{}
	ctx, s.cancel = context.WithCancel(ctx)
	theme := Theme
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		fmt.Print("\033[?25l")       // Hide cursor.
		defer fmt.Print("\033[?25h") // Restore cursor.
		fmt.Print(" ")
		for idx := 0; ; idx = (idx + 1) % len(theme) {
			fmt.Printf("\b%c", theme[idx])
			select {
			case <-ctx.Done():
				fmt.Print("\b \b")
				return
			case <-ticker.C:
			}
		}
	}()
	return s
}

// Done stops the spinning display and waits for it to be cleared.
func (s *Spinning) Done() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.wg.Wait()
}
