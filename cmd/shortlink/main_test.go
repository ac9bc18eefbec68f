package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const memoryConfig = `
server:
  base_url: https://sho.rt
store:
  driver: memory
cache:
  driver: memory
log:
  level: error
  output: stderr
`

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	for _, key := range []string{"DATABASE_URL", "REDIS_ADDR", "NATS_URL", "BASE_URL", "PORT"} {
		t.Setenv(key, "")
	}

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(memoryConfig), 0o600))

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", path}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestCLI_Create(t *testing.T) {
	out, err := runCLI(t, "create", "--url", "https://go.dev/doc")
	require.NoError(t, err)

	fields := strings.Fields(out)
	require.Len(t, fields, 3)
	assert.Equal(t, "created", fields[0])
	assert.Len(t, fields[1], 7)
	assert.Equal(t, "https://sho.rt/"+fields[1], fields[2])
}

func TestCLI_CreateRejectsInvalidURL(t *testing.T) {
	_, err := runCLI(t, "create", "--url", "ftp://x.com")
	assert.Error(t, err)

	_, err = runCLI(t, "create")
	assert.ErrorContains(t, err, "--url is required")
}

func TestCLI_MigrateRequiresPostgres(t *testing.T) {
	_, err := runCLI(t, "migrate", "up")
	assert.ErrorContains(t, err, "postgres store only")
}
