package browser

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/autotiss/internal/config"
	"github.com/xkilldash9x/autotiss/internal/uidriver"
)

func TestLaunchFlags(t *testing.T) {
	t.Run("visible window by default", func(t *testing.T) {
		cfg := config.NewDefaultConfig().Browser
		flags := launchFlags(cfg, "darwin")

		assert.Equal(t, false, flags["headless"])
		assert.Equal(t, false, flags["enable-automation"])
		assert.Equal(t, "AutomationControlled", flags["disable-blink-features"])
		assert.NotContains(t, flags, "no-sandbox")
	})

	t.Run("container flags on linux", func(t *testing.T) {
		flags := launchFlags(config.BrowserConfig{Headless: true}, "linux")

		assert.Equal(t, true, flags["headless"])
		assert.Equal(t, true, flags["disable-gpu"])
		assert.Equal(t, true, flags["no-sandbox"])
		assert.Equal(t, true, flags["disable-dev-shm-usage"])
	})

	t.Run("custom args override", func(t *testing.T) {
		cfg := config.BrowserConfig{Args: []string{"--lang=pt-BR", "--start-maximized", "--", "--headless=new"}}
		flags := launchFlags(cfg, "linux")

		assert.Equal(t, "pt-BR", flags["lang"])
		assert.Equal(t, true, flags["start-maximized"])
		assert.Equal(t, "new", flags["headless"])
		assert.NotContains(t, flags, "")
	})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"released object", errors.New("Could not find object with given id (-32000)"), uidriver.ErrStale},
		{"destroyed context", errors.New("Execution context was destroyed."), uidriver.ErrStale},
		{"deadline", context.DeadlineExceeded, uidriver.ErrTimeout},
		{"already typed", uidriver.ErrNotFound, uidriver.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, classify(tt.err), tt.want)
		})
	}

	other := errors.New("boom")
	assert.Equal(t, other, classify(other))
}

func TestScripts(t *testing.T) {
	expr := queryExpr(uidriver.XPath(`//td[text()='a "b"']`), ".length")
	assert.Contains(t, expr, `"//td[text()='a \"b\"']", true).length`)

	fn := queryWithinFn(uidriver.CSS("img[title='Inativar']"), "[2]")
	assert.True(t, strings.HasPrefix(fn, "function() { return ("))
	assert.Contains(t, fn, `(this, "img[title='Inativar']", false)[2]`)

	assert.Contains(t, attributeFn(`data-x"`), `this.hasAttribute("data-x\"")`)
	assert.Contains(t, connected(textJS), "this.isConnected")
	assert.Contains(t, allHiddenExpr(uidriver.CSS("#aguarde")), `.every(e => !(`)
}

func TestCombineContext(t *testing.T) {
	t.Run("second context cancels", func(t *testing.T) {
		ctx2, cancel2 := context.WithCancel(context.Background())
		combined, cancel := CombineContext(context.Background(), ctx2)
		defer cancel()

		cancel2()
		select {
		case <-combined.Done():
		case <-time.After(time.Second):
			t.Fatal("combined context was not canceled")
		}
	})

	t.Run("values come from the first context", func(t *testing.T) {
		type key struct{}
		ctx1 := context.WithValue(context.Background(), key{}, "cdp")
		combined, cancel := CombineContext(ctx1, context.Background())
		defer cancel()

		assert.Equal(t, "cdp", combined.Value(key{}))
		cancel()
		require.Error(t, combined.Err())
	})
}
