package cli

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reflink/internal/wire"
)

func TestStubCommand_ServesSeed(t *testing.T) {
	seedPath := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(seedPath, []byte(`
companies: [ACME]
affiliates:
  - code: ABC123XYZ9
    name: Jane Doe
`), 0o644))

	ready := make(chan string, 1)
	opts := &StubOptions{
		RootOptions: &RootOptions{Format: "text"},
		Addr:        "127.0.0.1:0",
		Seed:        seedPath,
		Ready:       ready,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cmd := &cobra.Command{}
	cmd.SetContext(ctx)
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)

	done := make(chan error, 1)
	go func() { done <- runStub(opts, cmd) }()

	var addr string
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("stub exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("stub did not start")
	}

	resp, err := http.Post("http://"+addr+wire.PathCheckAffiliate, "application/json",
		strings.NewReader(`{"companyId":"ACME","affiliateCode":"abc123xyz9"}`))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"exists":true`)

	resp, err = http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("stub did not shut down")
	}
	assert.Contains(t, out.String(), "Stub backend listening on http://"+addr)
}

func TestStubCommand_BadSeed(t *testing.T) {
	opts := &StubOptions{
		RootOptions: &RootOptions{Format: "text"},
		Addr:        "127.0.0.1:0",
		Seed:        "/nonexistent/seed.yaml",
	}
	cmd := &cobra.Command{}
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	err := runStub(opts, cmd)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
