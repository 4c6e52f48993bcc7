package cmd

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"taskplane/internal/launch"
)

func TestFetchCodeVerifiesDigest(t *testing.T) {
	resetViper()
	archive := []byte("pretend this is a tar archive")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive)
	}))
	defer server.Close()

	workdir := t.TempDir()
	oldWD, _ := os.Getwd()
	if err := os.Chdir(workdir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(oldWD)

	t.Setenv("TASKPLANE_CODE_URL", server.URL+"/pkg.tar")
	t.Setenv("TASKPLANE_CODE_SHA", launch.CodeDigest(archive))

	rootCmd.SetOut(new(bytes.Buffer))
	rootCmd.SetErr(new(bytes.Buffer))
	rootCmd.SetArgs([]string{"fetch-code"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("fetch-code failed: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(workdir, "code.tar"))
	if err != nil {
		t.Fatalf("code.tar missing: %v", err)
	}
	if !bytes.Equal(got, archive) {
		t.Error("code.tar content differs from the served archive")
	}
}

func TestFetchCodeRejectsDigestMismatch(t *testing.T) {
	resetViper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("tampered content"))
	}))
	defer server.Close()

	t.Setenv("TASKPLANE_CODE_URL", server.URL+"/pkg.tar")
	t.Setenv("TASKPLANE_CODE_SHA", launch.CodeDigest([]byte("expected content")))

	rootCmd.SetOut(new(bytes.Buffer))
	rootCmd.SetErr(new(bytes.Buffer))
	rootCmd.SetArgs([]string{"fetch-code"})
	if err := rootCmd.Execute(); err == nil {
		t.Error("fetch-code with a digest mismatch must fail")
	}
}
