package test

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

// SetupMockFilesystem creates an in-memory filesystem for testing.
// The caller is responsible for setting config.AppFs if needed.
func SetupMockFilesystem(t *testing.T) afero.Fs {
	return afero.NewMemMapFs()
}

// CreateTestFile creates a file with content in the test filesystem.
func CreateTestFile(t *testing.T, fs afero.Fs, path, content string) {
	err := fs.MkdirAll(filepath.Dir(path), 0755)
	require.NoError(t, err)
	err = afero.WriteFile(fs, path, []byte(content), 0644)
	require.NoError(t, err)
}

// AssertClosedOnce checks that the engine opened one session and closed it exactly once.
func AssertClosedOnce(t *testing.T, eng *MockEngine) {
	require.Len(t, eng.Sessions, 1, "exactly one session should have been opened")
	require.Equal(t, 1, eng.Sessions[0].CloseCalls, "session should be closed exactly once")
}

// AssertLogContains checks that the logger captured a message containing the substring.
func AssertLogContains(t *testing.T, logger *MockLogger, substring string) {
	require.True(t, logger.HasMessage(substring), "Log should contain: %s", substring)
}
