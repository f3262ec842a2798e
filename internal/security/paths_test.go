package security

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithinDir(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	outside := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(base, "runs"), 0o755))
	require.NoError(t, os.Symlink(outside, filepath.Join(base, "link")))

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"existing subdir", filepath.Join(base, "runs"), false},
		{"new file", filepath.Join(base, "runs", "a.csv"), false},
		{"new nested file", filepath.Join(base, "x", "y", "a.csv"), false},
		{"the dir itself", base, false},
		{"parent traversal", filepath.Join(base, "runs", "..", "..", "a.csv"), true},
		{"sibling dir", filepath.Join(outside, "a.csv"), true},
		{"through a symlink", filepath.Join(base, "link", "a.csv"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := WithinDir(tt.path, base)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrPathEscapes)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateOutputPath(t *testing.T) {
	t.Parallel()

	assert.NoError(t, ValidateOutputPath(filepath.Join(os.TempDir(), "spm", "run.png")))
	assert.NoError(t, ValidateOutputPath("plots/run.png"), "relative paths land under the working directory")

	extra := t.TempDir()
	assert.NoError(t, ValidateOutputPath(filepath.Join(extra, "run.csv"), extra))
	assert.ErrorIs(t, ValidateOutputPath("/proc/self/run.csv"), ErrPathEscapes)
}

func TestSafeUploadName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"97002_0203.csv", "97002_0203.csv"},
		{"../../etc/passwd", "passwd"},
		{`C:\logs\run 1.csv`, "run_1.csv"},
		{"my run (1).csv", "my_run_1_.csv"},
		{"__.hidden", "hidden"},
		{"", "upload.csv"},
		{"///", "upload.csv"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SafeUploadName(tt.in), tt.in)
	}
}
