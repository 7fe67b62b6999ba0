package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pestalert/pestalert-go/internal/errors"
)

func TestExpandString(t *testing.T) {
	t.Setenv("PESTALERT_TEST_TOKEN", "s3cret")
	t.Setenv("PESTALERT_TEST_EMPTY", "")

	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"empty", "", "", false},
		{"literal", "plain-value", "plain-value", false},
		{"variable", "${PESTALERT_TEST_TOKEN}", "s3cret", false},
		{"embedded", "Bearer ${PESTALERT_TEST_TOKEN}!", "Bearer s3cret!", false},
		{"fallback", "${PESTALERT_TEST_UNSET:-fallback}", "fallback", false},
		{"empty fallback", "${PESTALERT_TEST_EMPTY:-}", "", false},
		{"missing", "${PESTALERT_TEST_UNSET}", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandString(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
				assert.Contains(t, err.Error(), "PESTALERT_TEST_UNSET")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func writeSecret(t *testing.T, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	require.NoError(t, os.Chmod(path, perm))
	return path
}

func TestReadFile(t *testing.T) {
	t.Parallel()

	secret, permissive, err := ReadFile(writeSecret(t, "client-secret\n", 0o600))
	require.NoError(t, err)
	assert.Equal(t, "client-secret", secret)
	assert.False(t, permissive)

	secret, permissive, err = ReadFile(writeSecret(t, " spaced \r\n", 0o644))
	require.NoError(t, err)
	assert.Equal(t, " spaced ", secret)
	assert.True(t, permissive)

	for name, path := range map[string]string{
		"empty path": "",
		"missing":    filepath.Join(t.TempDir(), "nope"),
		"directory":  t.TempDir(),
		"blank file": writeSecret(t, "\n", 0o600),
	} {
		_, _, err := ReadFile(path)
		assert.Error(t, err, name)
	}
}

func TestReadFileTooLarge(t *testing.T) {
	t.Parallel()

	big := make([]byte, maxSecretFileSize+1)
	for i := range big {
		big[i] = 'a'
	}
	_, _, err := ReadFile(writeSecret(t, string(big), 0o600))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestResolve(t *testing.T) {
	t.Setenv("PESTALERT_TEST_PASSWORD", "from-env")

	path := writeSecret(t, "from-file\n", 0o400)

	got, _, err := Resolve(path, "${PESTALERT_TEST_PASSWORD}")
	require.NoError(t, err)
	assert.Equal(t, "from-file", got)

	got, _, err = Resolve("", "${PESTALERT_TEST_PASSWORD}")
	require.NoError(t, err)
	assert.Equal(t, "from-env", got)

	got, _, err = Resolve("", "")
	require.NoError(t, err)
	assert.Empty(t, got)
}
