package tools

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"dsa-agent/config"
	apperrors "dsa-agent/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// startFakeExecutor speaks the executor wire protocol and echoes the code back.
func startFakeExecutor(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				r := bufio.NewReader(c)
				for {
					var b strings.Builder
					for !strings.HasSuffix(b.String(), EOMToken) {
						ch, err := r.ReadByte()
						if err != nil {
							return
						}
						b.WriteByte(ch)
					}
					msg := strings.TrimSuffix(b.String(), EOMToken)
					_, code, _ := strings.Cut(msg, "|")
					_, _ = c.Write([]byte("ran: " + code + "\n" + EOMToken))
				}
			}(conn)
		}
	}()
	return ln.Addr().String()
}

func executorConfig(addrs ...string) *config.Config {
	return &config.Config{
		PythonExecutorAddresses:          addrs,
		PythonExecutorCooldownSeconds:    time.Minute,
		PythonExecutorDialTimeoutSeconds: time.Second,
		PythonExecutorIOTimeoutSeconds:   2 * time.Second,
		PythonExecutorMaxConnections:     2,
	}
}

func TestPythonExecutorPoolExecute(t *testing.T) {
	addr := startFakeExecutor(t)
	pool, err := NewPythonExecutorPool(context.Background(), executorConfig(addr), zap.NewNop())
	require.NoError(t, err)
	defer pool.Close()

	out, err := pool.Execute(context.Background(), "print(1)")
	require.NoError(t, err)
	assert.Equal(t, "ran: print(1)", out)

	// connection is reused
	out, err = pool.Execute(context.Background(), "print(2)")
	require.NoError(t, err)
	assert.Equal(t, "ran: print(2)", out)
}

func TestPythonExecutorPoolFailsOver(t *testing.T) {
	dead, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	deadAddr := dead.Addr().String()
	require.NoError(t, dead.Close())

	live := startFakeExecutor(t)
	pool, err := NewPythonExecutorPool(context.Background(), executorConfig(deadAddr, live), zap.NewNop())
	require.NoError(t, err)
	defer pool.Close()

	for i := 0; i < 3; i++ {
		out, err := pool.Execute(context.Background(), "x = 1")
		require.NoError(t, err)
		assert.Equal(t, "ran: x = 1", out)
	}
}

func TestPythonExecutorPoolUnreachable(t *testing.T) {
	dead, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := dead.Addr().String()
	require.NoError(t, dead.Close())

	_, err = NewPythonExecutorPool(context.Background(), executorConfig(addr), zap.NewNop())
	require.Error(t, err)
	assert.True(t, apperrors.IsServiceUnavailable(err))
}

func TestNewExecutorRingDeduplicates(t *testing.T) {
	ring, err := newExecutorRing([]string{"a:1", " a:1 ", "", "b:2"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []string{"a:1", "b:2"}, ring.addresses())

	_, err = newExecutorRing([]string{" ", ""}, time.Second)
	assert.Error(t, err)
}

func TestExecutorRingCooldown(t *testing.T) {
	ring, err := newExecutorRing([]string{"a:1", "b:2"}, time.Hour)
	require.NoError(t, err)

	ring.mark("a:1", false)
	for i := 0; i < 3; i++ {
		addr, err := ring.pick()
		require.NoError(t, err)
		assert.Equal(t, "b:2", addr)
	}

	ring.mark("b:2", false)
	_, err = ring.pick()
	assert.Error(t, err)

	ring.mark("a:1", true)
	addr, err := ring.pick()
	require.NoError(t, err)
	assert.Equal(t, "a:1", addr)
}

func TestPythonREPLTool(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantCode string
	}{
		{"bare code", "print(sum([1, 2, 3]))", "print(sum([1, 2, 3]))"},
		{"fenced python", "```python\nprint('hi')\n```", "print('hi')"},
		{"fence cut by stop sequence", "```python\nprint('hi')", "print('hi')"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &fakeExecutor{out: "6"}
			tool := NewPythonREPLTool(exec, 0, zap.NewNop())
			out, err := tool.Call(context.Background(), tt.input)
			require.NoError(t, err)
			assert.Equal(t, "6", out)
			assert.Equal(t, tt.wantCode, exec.code)
		})
	}
}

func TestPythonREPLToolFailures(t *testing.T) {
	t.Run("traceback is plain output", func(t *testing.T) {
		trace := "Traceback (most recent call last):\nZeroDivisionError: division by zero"
		tool := NewPythonREPLTool(&fakeExecutor{out: trace}, 0, zap.NewNop())
		out, err := tool.Call(context.Background(), "1/0")
		require.NoError(t, err)
		assert.Equal(t, trace, out)
	})

	t.Run("sandbox failure", func(t *testing.T) {
		tool := NewPythonREPLTool(&fakeExecutor{err: errors.New("executor down")}, 0, zap.NewNop())
		_, err := tool.Call(context.Background(), "print(1)")
		assert.EqualError(t, err, "Error: executor down")
	})

	t.Run("empty input", func(t *testing.T) {
		exec := &fakeExecutor{}
		tool := NewPythonREPLTool(exec, 0, zap.NewNop())
		_, err := tool.Call(context.Background(), "  ")
		require.Error(t, err)
		assert.True(t, strings.HasPrefix(err.Error(), "Error: no code provided"))
		assert.Empty(t, exec.code)
	})

	t.Run("silent code yields empty output", func(t *testing.T) {
		tool := NewPythonREPLTool(&fakeExecutor{out: ""}, 0, zap.NewNop())
		out, err := tool.Call(context.Background(), "x = 1")
		require.NoError(t, err)
		assert.Equal(t, "", out)
	})
}

func TestCombineOutput(t *testing.T) {
	assert.Equal(t, "out", combineOutput("out\n", "", 100))
	assert.Equal(t, "err", combineOutput("", "err\n", 100))
	assert.Equal(t, "out\nSTDERR: err", combineOutput("out", "err", 100))
	assert.Equal(t, "abcd\n...[output truncated]", combineOutput("abcdefgh", "", 4))
}

func TestSanitizeLogOutput(t *testing.T) {
	assert.Equal(t, "hello", sanitizeLogOutput("hello", 100))
	assert.Equal(t, "hel...", sanitizeLogOutput("hello", 3))
	assert.Equal(t, "[Output contains potentially sensitive data - not logged]", sanitizeLogOutput("API_KEY=abc", 100))
}
