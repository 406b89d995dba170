// Package support implements the godog steps for the bookscan CLI suites.
package support

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/MeKo-Tech/bookscan/internal/testutil"
)

// TestContext is the state of one scenario. Every file a scenario creates
// lives below TempDir.
type TestContext struct {
	LastCommand    string
	LastOutput     string
	LastError      error
	LastExitCode   int
	LastOutputFile string

	// WorkingDir is the project root; bin/bookscan is resolved against it.
	WorkingDir string
	TempDir    string
	DBPath     string
	EnvVars    []string

	// Files maps fixture names to paths for {file:name} substitution.
	Files map[string]string

	ServerProcess  *os.Process
	ServerPort     int
	ServerHost     string
	HTTPTestServer *HTTPTestServerWrapper

	LastHTTPStatusCode int
	LastHTTPResponse   string
	LastHTTPHeaders    map[string]string
}

// NewTestContext creates a scenario context with its own home directory
// and history database.
func NewTestContext() (*TestContext, error) {
	root, err := testutil.GetProjectRoot()
	if err != nil {
		return nil, err
	}

	tempDir, err := os.MkdirTemp("", "bookscan-test-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	testCtx := &TestContext{
		WorkingDir: root,
		TempDir:    tempDir,
		DBPath:     filepath.Join(tempDir, "history.db"),
		Files:      map[string]string{},
		ServerHost: "127.0.0.1",
	}

	testCtx.AddEnvVar("HOME", tempDir)
	testCtx.AddEnvVar("XDG_CONFIG_HOME", filepath.Join(tempDir, ".config"))
	testCtx.AddEnvVar("BOOKSCAN_STORAGE_PATH", testCtx.DBPath)

	return testCtx, nil
}

// Cleanup stops any server and removes the scenario's temp directory.
func (testCtx *TestContext) Cleanup() error {
	var errs []error
	if err := testCtx.StopServer(); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop server: %w", err))
	}
	if err := os.RemoveAll(testCtx.TempDir); err != nil {
		errs = append(errs, fmt.Errorf("failed to remove %s: %w", testCtx.TempDir, err))
	}
	return errors.Join(errs...)
}

// StopServer stops whichever server the scenario started.
func (testCtx *TestContext) StopServer() error {
	if testCtx.HTTPTestServer != nil {
		return testCtx.stopTestHTTPServer()
	}
	if testCtx.ServerProcess == nil {
		return nil
	}

	err := testCtx.ServerProcess.Kill()
	_, _ = testCtx.ServerProcess.Wait()
	testCtx.ServerProcess = nil
	if err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to kill server process: %w", err)
	}
	return nil
}

// AddEnvVar sets an environment variable for every later command.
func (testCtx *TestContext) AddEnvVar(name, value string) {
	testCtx.EnvVars = append(testCtx.EnvVars, name+"="+value)
}

func (testCtx *TestContext) fixturePath(name string) string {
	return filepath.Join(testCtx.TempDir, "fixtures", name)
}
