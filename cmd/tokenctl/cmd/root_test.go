package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	token "github.com/pilab-dev/shadow-token"
	"github.com/pilab-dev/shadow-token/cache"
	"github.com/pilab-dev/shadow-token/config"
	"github.com/pilab-dev/shadow-token/idgen"
	"github.com/pilab-dev/shadow-token/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type harness struct {
	svc        *token.Service
	cfgFile    string
	collection string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	svc := token.New(cache.NewMemoryStore(), token.WithGenerator(idgen.UUID{}))
	t.Cleanup(func() { _ = svc.Close() })

	cfgFile := filepath.Join(t.TempDir(), "token_config.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("STORAGE_BACKEND: memory\nCOLLECTION: cli\n"), 0o600))
	return &harness{svc: svc, cfgFile: cfgFile}
}

func (h *harness) exec(args ...string) (string, error) {
	open := func(_ context.Context, cfg *config.ServerConfig, _ log.Logger) (*token.Service, func(context.Context) error, error) {
		h.collection = cfg.Collection
		return h.svc, func(context.Context) error { return nil }, nil
	}
	root := newRootCmd(open)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append([]string{"--config", h.cfgFile}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestCLI_CreateCheckDelete(t *testing.T) {
	h := newHarness(t)

	out, err := h.exec("create", "tok-cli", "--user", "alice", "--role", "admin", "--context", "ops")
	require.NoError(t, err)
	assert.Equal(t, "tok-cli\n", out)
	assert.Equal(t, "cli", h.collection)

	out, err = h.exec("check", "tok-cli", "--role", "admin", "--touch")
	require.NoError(t, err)
	assert.Equal(t, "tok-cli\n", out)

	_, err = h.exec("check", "tok-cli", "--role", "auditor")
	assert.ErrorIs(t, err, ErrNotLive)

	out, err = h.exec("delete", "tok-cli")
	require.NoError(t, err)
	assert.Equal(t, "deleted\n", out)

	_, err = h.exec("check", "tok-cli")
	assert.ErrorIs(t, err, ErrNotLive)
}

func TestCLI_CreateRequiresUser(t *testing.T) {
	h := newHarness(t)

	_, err := h.exec("create", "tok-x")
	assert.Error(t, err)
}

func TestCLI_IssueAndGet(t *testing.T) {
	h := newHarness(t)

	out, err := h.exec("issue", "--user", "bob", "--session-timeout", "2m")
	require.NoError(t, err)
	value := out[:len(out)-1]
	assert.Len(t, value, 36)

	out, err = h.exec("get", value)
	require.NoError(t, err)

	var view tokenView
	require.NoError(t, yaml.Unmarshal([]byte(out), &view))
	assert.Equal(t, value, view.Token)
	assert.Equal(t, "bob", view.User)
	assert.True(t, view.Live)

	created, err := time.Parse(time.RFC3339Nano, view.Created)
	require.NoError(t, err)
	expiration, err := time.Parse(time.RFC3339Nano, view.Expiration)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, expiration.Sub(created))

	_, err = h.exec("get", "missing")
	assert.ErrorIs(t, err, token.ErrTokenNotFound)
}

func TestCLI_TouchDeleteUserSweep(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for _, v := range []string{"u1", "u2"} {
		_, err := h.svc.CreateToken(ctx, v, "", "carol", nil)
		require.NoError(t, err)
	}

	out, err := h.exec("touch", "u1", "--session-timeout", "1h")
	require.NoError(t, err)
	assert.Equal(t, "u1\n", out)

	out, err = h.exec("delete-user", "carol")
	require.NoError(t, err)
	assert.Equal(t, "deleted 2\n", out)

	out, err = h.exec("sweep")
	require.NoError(t, err)
	assert.Equal(t, "swept\n", out)
}

func TestCLI_CollectionFlag(t *testing.T) {
	h := newHarness(t)

	_, err := h.exec("--collection", "other", "sweep")
	require.NoError(t, err)
	assert.Equal(t, "other", h.collection)
}
