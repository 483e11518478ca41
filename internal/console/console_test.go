package console

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/autotiss/internal/cycle"
	"github.com/xkilldash9x/autotiss/internal/shell"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestMenu(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name  string
		input string
		want  Mode
	}{
		{"link logins", "1\n", ModeLinkLogins},
		{"register services", "2\n", ModeRegisterServices},
		{"per container", " 3 \n", ModeLinkPerContainer},
		{"exit", "0\n", ModeExit},
		{"invalid then valid", "9\n2\n", ModeRegisterServices},
		{"end of input", "", ModeExit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			c := NewWithMode(strings.NewReader(tt.input), &out, true)
			defer c.Close()

			got, err := c.Menu(ctx)

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			if tt.name == "invalid then valid" {
				assert.Contains(t, out.String(), `Unknown option "9"`)
			}
		})
	}
}

func TestConfirmNextCycle(t *testing.T) {
	ctx := context.Background()

	t.Run("enter continues", func(t *testing.T) {
		c := NewWithMode(strings.NewReader("\n"), io.Discard, true)
		defer c.Close()
		again, err := c.ConfirmNextCycle(ctx, false)
		require.NoError(t, err)
		assert.True(t, again)
	})

	for _, word := range []string{"0", "q", "STOP", "sair"} {
		t.Run("stop word "+word, func(t *testing.T) {
			c := NewWithMode(strings.NewReader(word+"\n"), io.Discard, true)
			defer c.Close()
			again, err := c.ConfirmNextCycle(ctx, false)
			require.NoError(t, err)
			assert.False(t, again)
		})
	}

	t.Run("unknown answers are asked again", func(t *testing.T) {
		var out bytes.Buffer
		c := NewWithMode(strings.NewReader("talvez\n\n"), &out, true)
		defer c.Close()
		again, err := c.ConfirmNextCycle(ctx, true)
		require.NoError(t, err)
		assert.True(t, again)
		assert.Contains(t, out.String(), "input list changed")
		assert.Contains(t, out.String(), `Unknown answer "talvez"`)
	})

	t.Run("non interactive runs one cycle", func(t *testing.T) {
		c := NewWithMode(strings.NewReader(""), io.Discard, false)
		defer c.Close()
		again, err := c.ConfirmNextCycle(ctx, false)
		require.NoError(t, err)
		assert.False(t, again)
	})

	t.Run("canceled context", func(t *testing.T) {
		pr, pw := io.Pipe()
		defer pw.Close()
		c := NewWithMode(pr, io.Discard, true)
		defer c.Close()
		ctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := c.ConfirmNextCycle(ctx, false)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestWaitForLogin(t *testing.T) {
	ctx := context.Background()

	c := NewWithMode(strings.NewReader(""), io.Discard, false)
	defer c.Close()
	assert.ErrorIs(t, c.WaitForLogin(ctx), ErrNonInteractive)

	c2 := NewWithMode(strings.NewReader("\n"), io.Discard, true)
	defer c2.Close()
	assert.NoError(t, c2.WaitForLogin(ctx))
}

func TestWatchPause(t *testing.T) {
	pr, pw := io.Pipe()
	var out bytes.Buffer
	c := NewWithMode(pr, &out, true)
	gate := cycle.NewGate()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.WatchPause(ctx, gate)
	}()

	write := func(s string) {
		_, err := io.WriteString(pw, s)
		require.NoError(t, err)
	}

	write("p\n")
	require.Eventually(t, gate.Paused, time.Second, time.Millisecond)
	write("\n")
	require.Eventually(t, func() bool { return !gate.Paused() }, time.Second, time.Millisecond)
	write("x\n")
	write("p\n")
	require.Eventually(t, gate.Paused, time.Second, time.Millisecond)

	cancel()
	<-done
	assert.False(t, gate.Paused(), "a held pause is released when watching stops")

	require.NoError(t, pw.Close())
	c.Close()
	assert.Contains(t, out.String(), "Pausing before the next entity")
	assert.Contains(t, out.String(), "Resumed.")
}

func TestFormatSummary(t *testing.T) {
	sum := cycle.Summary{
		Label:    "link",
		Applied:  2,
		Failed:   1,
		Requeued: 2, Recovered: 1,
		Outcomes: []cycle.Outcome{
			{Entity: cycle.Entity{Index: 0}, Kind: cycle.Applied, Warnings: []string{`no option matched "zz"`}},
			{Entity: cycle.Entity{Index: 1}, Kind: cycle.Failed, Err: errors.New("picker did not open")},
		},
	}

	text := FormatSummary(sum)

	assert.Contains(t, text, "Cycle link finished")
	assert.Contains(t, text, "applied 2")
	assert.Contains(t, text, "failed 1")
	assert.Contains(t, text, "requeued 2, recovered 1")
	assert.Contains(t, text, "row 2: picker did not open")
	assert.Contains(t, text, `row 1: no option matched "zz"`)

	sum.Interrupted = true
	assert.Contains(t, FormatSummary(sum), "interrupted")
}

func TestShowContainers(t *testing.T) {
	var out bytes.Buffer
	c := NewWithMode(strings.NewReader(""), &out, false)
	defer c.Close()

	c.ShowContainers(shell.Report{Results: []shell.ContainerResult{
		{Container: "A", Entered: true},
		{Container: "B", Err: shell.ErrEntryFailed},
	}})

	assert.Contains(t, out.String(), "2 container(s) visited, 1 skipped.")
	assert.Contains(t, out.String(), "B: container listing did not appear")
}
