package input

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/autotiss/internal/config"
	"github.com/xkilldash9x/autotiss/internal/interaction"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func newTestSource(t *testing.T, content string) (*Source, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dados.json")
	if content != "" {
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	cfg := config.NewDefaultConfig().Input
	cfg.Path = path
	return NewSource(cfg, zaptest.NewLogger(t)), path
}

func TestSourceLoad(t *testing.T) {
	t.Run("legacy json file", func(t *testing.T) {
		src, _ := newTestSource(t, `{
			"logins_para_vincular": ["ana", " bia ", ""],
			"medicos_para_cadastrar": ["Dr. Ana"]
		}`)

		lists, err := src.Load()

		require.NoError(t, err)
		assert.Equal(t, []string{"ana", "bia"}, lists.Associations)
		assert.Equal(t, []string{"Dr. Ana"}, lists.Providers)
		assert.Empty(t, lists.Containers)
		assert.Empty(t, lists.Warnings)
	})

	t.Run("yaml file with duplicates and numbers", func(t *testing.T) {
		src, _ := newTestSource(t, "logins_para_vincular:\n  - ana\n  - ana\n  - 1234\ncontainers: [Clinica A]\n")

		lists, err := src.Load()

		require.NoError(t, err)
		assert.Equal(t, []string{"ana", "1234"}, lists.Associations)
		assert.Equal(t, []string{"Clinica A"}, lists.Containers)
		require.Len(t, lists.Warnings, 1)
		assert.Contains(t, lists.Warnings[0], `"ana"`)
	})

	t.Run("missing file is a configuration error", func(t *testing.T) {
		src, _ := newTestSource(t, "")

		lists, err := src.Load()

		assert.ErrorIs(t, err, ErrInput)
		assert.ErrorIs(t, err, interaction.ErrConfiguration)
		assert.Equal(t, interaction.KindConfiguration, interaction.Classify(err))
		assert.Empty(t, lists.Associations)
	})

	t.Run("malformed file", func(t *testing.T) {
		src, _ := newTestSource(t, `{"logins_para_vincular": [`)
		_, err := src.Load()
		assert.ErrorIs(t, err, ErrInput)
	})

	t.Run("field of the wrong shape", func(t *testing.T) {
		src, _ := newTestSource(t, `{"logins_para_vincular": "ana"}`)
		_, err := src.Load()
		assert.ErrorIs(t, err, ErrInput)
		assert.Contains(t, err.Error(), "must be a list")
	})

	t.Run("the same error is reported once until it changes", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "dados.json")
		cfg := config.NewDefaultConfig().Input
		cfg.Path = path
		core, logs := observer.New(zap.ErrorLevel)
		src := NewSource(cfg, zap.New(core))

		for range 3 {
			_, err := src.Load()
			require.Error(t, err)
		}
		assert.Equal(t, 1, logs.Len())

		require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o644))
		_, err := src.Load()
		require.NoError(t, err)
		require.NoError(t, os.Remove(path))
		_, err = src.Load()
		require.Error(t, err)
		assert.Equal(t, 2, logs.Len(), "a recovered error is reported again")
	})
}

func TestNormalize(t *testing.T) {
	out, warnings := Normalize("f", []string{" a", "b", "", "a ", "  ", "c", "b"})
	assert.Equal(t, []string{"a", "b", "c"}, out)
	assert.Len(t, warnings, 2)

	out, warnings = Normalize("f", nil)
	assert.Empty(t, out)
	assert.Empty(t, warnings)
}

func TestWatcher(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := filepath.Join(t.TempDir(), "dados.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o644))
	w := NewWatcher(path, 20*time.Millisecond, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	select {
	case <-w.Ready():
	case err := <-done:
		t.Fatalf("watcher exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher never became ready")
	}
	assert.Zero(t, w.Generation())

	// Unrelated files in the same directory are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(path), "other.txt"), []byte("x"), 0o644))
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, w.Generation())

	// A burst of writes settles into one generation.
	for i := range 3 {
		require.NoError(t, os.WriteFile(path, []byte(`{"containers": ["`+string(rune('a'+i))+`"]}`), 0o644))
	}
	require.Eventually(t, func() bool { return w.Generation() == 1 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
