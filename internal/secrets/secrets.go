// Package secrets resolves credentials given either inline, as ${VAR}
// references or as files mounted by Docker or Kubernetes.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pestalert/pestalert-go/internal/errors"
)

// maxSecretFileSize limits secret file reads; secrets are tokens and passwords.
const maxSecretFileSize = 64 * 1024

// ExpandString resolves ${VAR} and ${VAR:-default} references.
// A referenced variable that is unset and has no default is an error.
func ExpandString(s string) (string, error) {
	if s == "" {
		return "", nil
	}

	var missing []string
	expanded := os.Expand(s, func(key string) string {
		name, fallback, hasFallback := strings.Cut(key, ":-")

		if value := os.Getenv(name); value != "" {
			return value
		}
		if hasFallback {
			return fallback
		}
		missing = append(missing, name)
		return ""
	})

	if len(missing) > 0 {
		return "", secretError(fmt.Errorf("missing required environment variable(s): %s", strings.Join(missing, ", ")))
	}
	return expanded, nil
}

// ReadFile reads a secret file and trims trailing newlines. The second
// return value is true when group or other users can access the file.
func ReadFile(path string) (secret string, permissive bool, err error) {
	if path == "" {
		return "", false, secretError(errors.NewStd("secret file path is empty"))
	}
	cleanPath := filepath.Clean(path)

	info, err := os.Stat(cleanPath)
	if err != nil {
		return "", false, secretError(fmt.Errorf("cannot stat secret file %s: %w", cleanPath, err))
	}
	if !info.Mode().IsRegular() {
		return "", false, secretError(fmt.Errorf("secret path is not a regular file: %s", cleanPath))
	}
	if info.Size() > maxSecretFileSize {
		return "", false, secretError(fmt.Errorf("secret file too large (max %d bytes): %s", maxSecretFileSize, cleanPath))
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return "", false, secretError(fmt.Errorf("cannot read secret file %s: %w", cleanPath, err))
	}

	// Only trailing newlines; spaces may be intentional.
	secret = strings.TrimRight(string(data), "\r\n")
	if secret == "" {
		return "", false, secretError(fmt.Errorf("secret file is empty: %s", cleanPath))
	}
	return secret, info.Mode().Perm()&0o077 != 0, nil
}

// Resolve picks the secret value. A file path wins over value, and value
// is expanded for environment references.
func Resolve(filePath, value string) (secret string, permissive bool, err error) {
	if filePath != "" {
		return ReadFile(filePath)
	}
	secret, err = ExpandString(value)
	return secret, false, err
}

func secretError(err error) error {
	return errors.New(err).
		Component("secrets").
		Category(errors.CategoryConfiguration).
		Build()
}
