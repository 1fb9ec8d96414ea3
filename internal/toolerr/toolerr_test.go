// ABOUTME: Tests for the tool error taxonomy.
// ABOUTME: Covers fs error mapping, JSON bodies, and retry classification.

package toolerr

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIO_NotFound(t *testing.T) {
	_, err := os.Stat(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)

	te := IO("stat", err)
	assert.Equal(t, KindIO, te.Kind)
	assert.Equal(t, CodeNotFound, te.Code)
	assert.ErrorIs(t, te, os.ErrNotExist)
}

func TestIO_PassesThroughToolErrors(t *testing.T) {
	orig := Path("read", CodeOutsideWorkspace, "escape")
	assert.Same(t, orig, IO("read", fmt.Errorf("wrapped: %w", orig)))
}

func TestFrom(t *testing.T) {
	assert.Nil(t, From("x", nil))
	assert.Equal(t, KindTimeout, From("x", context.DeadlineExceeded).Kind)
	assert.Equal(t, KindInternal, From("x", fmt.Errorf("boom")).Kind)
}

func TestBlocked(t *testing.T) {
	e := Blocked("execute_shell_command", "sudo ", 126)
	assert.Equal(t, KindPolicyBlocked, e.Kind)
	assert.Equal(t, 126, e.Status)
	assert.False(t, e.Retryable())

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(e.JSON()), &body))
	assert.Equal(t, "policy_blocked", body["kind"])
	assert.EqualValues(t, 126, body["status"])
}

func TestMissingNamesField(t *testing.T) {
	e := Missing("time_operation", "fmt")
	assert.Equal(t, "fmt", e.Field)
	assert.Contains(t, e.Error(), `"fmt" is required`)
}

func TestTimeoutNamesBound(t *testing.T) {
	e := Timeout("browser_wait_for_element", 3*time.Second, context.DeadlineExceeded)
	assert.Contains(t, e.Error(), "3s")
	assert.True(t, e.Retryable())
	assert.Equal(t, KindTimeout, KindOf(fmt.Errorf("outer: %w", e)))
}

func TestTypedNilErrorBecomesInternal(t *testing.T) {
	var nilErr *Error
	var err error = nilErr

	for name, conv := range map[string]func(string, error) *Error{"From": From, "IO": IO} {
		t.Run(name, func(t *testing.T) {
			te := conv("browser_get_network_requests", err)
			require.NotNil(t, te)
			assert.Equal(t, KindInternal, te.Kind)
			assert.Equal(t, "browser_get_network_requests", te.Op)
			assert.NotEmpty(t, te.Error())
		})
	}
	assert.Equal(t, Kind(""), KindOf(err))
}
