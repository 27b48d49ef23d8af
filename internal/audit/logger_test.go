package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/pilab-dev/shadow-token/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_Log(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "tokend")
	l.now = func() time.Time { return time.UnixMilli(1_735_873_686_000) }

	ctx := domain.WithToken(context.Background(), &domain.Token{User: "root"})
	l.Log(ctx, ActionDeleteUserTokens, "alice", "deleted=2", nil)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "tokend", line["service"])
	assert.Equal(t, ActionDeleteUserTokens, line["action"])
	assert.Equal(t, "root", line["actor"])
	assert.Equal(t, "alice", line["target"])
	assert.Equal(t, "deleted=2", line["details"])
	assert.Equal(t, true, line["success"])
	assert.Equal(t, "audit", line["message"])
}

func TestLogger_Failure(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "tokend").Log(context.Background(), ActionSweep, "tokens", "", errors.New("primary stepped down"))

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, false, line["success"])
	assert.Equal(t, "primary stepped down", line["error"])
	assert.Equal(t, "", line["actor"])
}

func TestLogger_Nil(t *testing.T) {
	var l *Logger
	assert.NotPanics(t, func() { l.Log(context.Background(), ActionSweep, "", "", nil) })
}
