// Package spinning provides a friendly spinning clock (or some other spinning symbols)
// to show, with the elapsed time, while a long training step runs. It also handles
// interruptions (Ctrl+C) gracefully.
package spinning

import (
	"context"
	"fmt"
	"golang.org/x/term"
	"io"
	"k8s.io/klog/v2"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// Spinning is a running spinner, stopped with Done.
type Spinning struct {
	wg     sync.WaitGroup
	cancel func()
	start  time.Time
}

var (
	ThemeAscii = []rune("|/-\\")
	ThemeMoon  = []rune("🌑🌒🌓🌔🌕🌖🌗🌘")
	ThemeClock = []rune("🕐🕑🕒🕓🕔🕕🕖🕗🕘🕙🕚🕛")

	// Theme defaults to ThemeClock, but it can be set to anything else.
	Theme = ThemeClock

	// Output where the spinner is drawn.
	Output io.Writer = os.Stdout
)

// SafeInterrupt will capture SigInt (Ctrl+C) and SigTerm and call the provided onInterrupt,
// usually the cancel function of the context of the training.
// If the program haven't exited after gracePeriod, it will call Reset to reset the terminal
// and exit.
func SafeInterrupt(onInterrupt func(), gracePeriod time.Duration) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigChan
		fmt.Println()
		klog.Errorf("Got interrupted (signal %q), shutting down... (%s)", s, gracePeriod)
		if onInterrupt != nil {
			go onInterrupt()
		}

		// Wait for gracePeriod before exiting.
		time.Sleep(gracePeriod)
		Reset()
		klog.Exitf("Graceful shutting down %s period expired, exiting.", gracePeriod)
	}()
}

// Reset terminal: make cursor visible, restore default terminal colors.
func Reset() {
	fmt.Print("\033[?25h\033[39;49;0m\n") // Restore cursor and colors.
}

// isTerminal returns whether Output is an interactive terminal.
func isTerminal() bool {
	f, ok := Output.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// New starts a spinning display of the message, on a separate goroutine.
// It stops when Spinning.Done is called, or when ctx is cancelled.
//
// If Output is not a terminal, it only prints the message.
func New(ctx context.Context, message string) *Spinning {
	s := &Spinning{start: time.Now()}
	if !isTerminal() {
		_, _ = fmt.Fprintf(Output, "%s...\n", message)
		return s
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		// Hide cursor while spinning, and restore it at the end.
		_, _ = fmt.Fprint(Output, "\033[?25l")
		defer func() { _, _ = fmt.Fprint(Output, "\033[?25h") }()

		var idx int
		for {
			elapsed := time.Since(s.start).Round(time.Second)
			_, _ = fmt.Fprintf(Output, "\r%c %s (%s)\033[K", Theme[idx], message, elapsed)
			idx = (idx + 1) % len(Theme)
			select {
			case <-ctx.Done():
				_, _ = fmt.Fprint(Output, "\r\033[K")
				return
			case <-ticker.C:
				// continue
			}
		}
	}()
	return s
}

// Done stops the spinner and returns the time elapsed since it started.
func (s *Spinning) Done() time.Duration {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.wg.Wait()
	return time.Since(s.start)
}
