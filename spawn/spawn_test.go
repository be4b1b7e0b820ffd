package spawn

import (
	"bufio"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	assert.Error(t, Config{}.Validate())
	assert.NoError(t, Config{Command: "cat"}.Validate())
}

func TestExecSpawnerRoundTrip(t *testing.T) {
	sp := NewExecSpawner()
	proc, err := sp.Spawn(context.Background(), Config{Command: "cat"})
	require.NoError(t, err)

	_, err = proc.Stdin().Write([]byte("hello\n"))
	require.NoError(t, err)

	line, err := bufio.NewReader(proc.Stdout()).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "hello\n", line)

	require.NoError(t, proc.Stdin().Close())
	select {
	case <-proc.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the process to exit")
	}
	assert.NoError(t, proc.Err())
}

func TestExecSpawnerKill(t *testing.T) {
	sp := NewExecSpawner()
	proc, err := sp.Spawn(context.Background(), Config{Command: "sleep", Args: []string{"60"}})
	require.NoError(t, err)

	assert.Nil(t, proc.Err())
	require.NoError(t, proc.Kill())
	select {
	case <-proc.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the killed process to exit")
	}
	assert.Error(t, proc.Err())
}

func TestExecSpawnerPassesEnv(t *testing.T) {
	sp := NewExecSpawner()
	proc, err := sp.Spawn(context.Background(), Config{
		Command: "sh",
		Args:    []string{"-c", "printf '%s' \"$GREETING\""},
		Env:     map[string]string{"GREETING": "hi"},
	})
	require.NoError(t, err)

	out := bufio.NewScanner(proc.Stdout())
	require.True(t, out.Scan())
	assert.Equal(t, "hi", out.Text())
	<-proc.Done()
}

func TestExecSpawnerRejectsInvalidConfig(t *testing.T) {
	sp := NewExecSpawner()
	_, err := sp.Spawn(context.Background(), Config{})
	assert.Error(t, err)
}
