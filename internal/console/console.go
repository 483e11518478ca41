// Package console is the operator's line-based control surface: the mode
// menu, the cycle prompt, the pause key and the end-of-cycle summary.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// ErrNonInteractive is returned by prompts that need a human at a terminal.
var ErrNonInteractive = errors.New("console is not interactive")

// Mode is a menu choice.
type Mode int

const (
	ModeExit Mode = iota
	ModeLinkLogins
	ModeRegisterServices
	ModeLinkPerContainer
)

func (m Mode) String() string {
	switch m {
	case ModeLinkLogins:
		return "link logins"
	case ModeRegisterServices:
		return "register services"
	case ModeLinkPerContainer:
		return "link logins per container"
	default:
		return "exit"
	}
}

var stopWords = map[string]bool{"0": true, "q": true, "stop": true, "sair": true}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).
		Border(lipgloss.RoundedBorder()).Padding(0, 1)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// Console owns stdin for the life of the process. A single goroutine reads
// lines; prompts and the pause watcher take turns consuming them.
type Console struct {
	out         io.Writer
	interactive bool

	lines chan string
	stop  chan struct{}
	once  sync.Once
	wmu   sync.Mutex
}

// New starts reading lines from in. Prompts auto-answer when in is not a
// terminal.
func New(in io.Reader, out io.Writer) *Console {
	return NewWithMode(in, out, isTerminal(in))
}

// NewWithMode is New with explicit terminal detection.
func NewWithMode(in io.Reader, out io.Writer, interactive bool) *Console {
	c := &Console{
		out:         out,
		interactive: interactive,
		lines:       make(chan string),
		stop:        make(chan struct{}),
	}
	go c.read(in)
	return c
}

func isTerminal(r io.Reader) bool {
	if f, ok := r.(*os.File); ok {
		return term.IsTerminal(int(f.Fd()))
	}
	return false
}

func (c *Console) read(in io.Reader) {
	defer close(c.lines)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		select {
		case c.lines <- strings.TrimSpace(scanner.Text()):
		case <-c.stop:
			return
		}
	}
}

// Close releases the reader goroutine once its current read returns.
func (c *Console) Close() {
	c.once.Do(func() { close(c.stop) })
}

// Interactive reports whether stdin is a terminal.
func (c *Console) Interactive() bool { return c.interactive }

// ReadLine waits for the next line. io.EOF means the input is exhausted.
func (c *Console) ReadLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-c.lines:
		if !ok {
			return "", io.EOF
		}
		return line, nil
	}
}

func (c *Console) printf(format string, args ...any) {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_, _ = fmt.Fprintf(c.out, format, args...)
}

// Banner prints a boxed title.
func (c *Console) Banner(title string) {
	c.printf("%s\n", titleStyle.Render(title))
}

// Notice prints a dimmed informational line.
func (c *Console) Notice(format string, args ...any) {
	c.printf("%s\n", mutedStyle.Render(fmt.Sprintf(format, args...)))
}

// Menu asks for a mode until a valid choice is entered. End of input exits.
func (c *Console) Menu(ctx context.Context) (Mode, error) {
	c.Banner("autotiss")
	for {
		c.printf("  1) Link logins\n  2) Register services\n  3) Link logins per container\n  0) Exit\n> ")
		line, err := c.ReadLine(ctx)
		if errors.Is(err, io.EOF) {
			return ModeExit, nil
		}
		if err != nil {
			return ModeExit, err
		}
		switch strings.ToLower(line) {
		case "1":
			return ModeLinkLogins, nil
		case "2":
			return ModeRegisterServices, nil
		case "3":
			return ModeLinkPerContainer, nil
		case "0", "q", "sair":
			return ModeExit, nil
		}
		c.printf("%s\n", warnStyle.Render(fmt.Sprintf("Unknown option %q.", line)))
	}
}

// ConfirmNextCycle asks whether to run another cycle. ENTER continues; a stop
// word ends the mode. Without a terminal it always stops, so a piped run does
// exactly one cycle.
func (c *Console) ConfirmNextCycle(ctx context.Context, inputChanged bool) (bool, error) {
	if !c.interactive {
		return false, nil
	}
	if inputChanged {
		c.Notice("The input list changed since the last cycle.")
	}
	for {
		c.printf("Press ENTER to run another cycle (0, q, stop or sair to finish): ")
		line, err := c.ReadLine(ctx)
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if line == "" {
			return true, nil
		}
		if stopWords[strings.ToLower(line)] {
			return false, nil
		}
		c.printf("%s\n", warnStyle.Render(fmt.Sprintf("Unknown answer %q.", line)))
	}
}

// WaitForLogin blocks until the operator confirms a manual login.
func (c *Console) WaitForLogin(ctx context.Context) error {
	if !c.interactive {
		return fmt.Errorf("manual login needs a terminal; set credentials instead: %w", ErrNonInteractive)
	}
	c.Banner("Manual login")
	c.printf("Log in in the browser window, then press ENTER here.\n")
	_, err := c.ReadLine(ctx)
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("input closed before login was confirmed: %w", ErrNonInteractive)
	}
	return err
}

// Pauser is the pause token the watcher drives.
type Pauser interface {
	Pause()
	Resume()
	Paused() bool
}

// WatchPause consumes lines until ctx is done: "p" requests a pause at the
// next entity and ENTER (or "r") resumes. It releases a held pause on exit.
func (c *Console) WatchPause(ctx context.Context, gate Pauser) {
	defer gate.Resume()
	if c.interactive {
		c.Notice("Type p and ENTER to pause before the next entity.")
	}
	for {
		line, err := c.ReadLine(ctx)
		if err != nil {
			return
		}
		switch strings.ToLower(line) {
		case "p":
			if !gate.Paused() {
				gate.Pause()
				c.printf("%s\n", warnStyle.Render("Pausing before the next entity. Press ENTER to resume."))
			}
		case "", "r":
			if gate.Paused() {
				gate.Resume()
				c.printf("%s\n", okStyle.Render("Resumed."))
			}
		}
	}
}
