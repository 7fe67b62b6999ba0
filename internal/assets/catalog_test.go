package assets

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pestalert/pestalert-go/internal/conf"
	"github.com/pestalert/pestalert-go/internal/errors"
	"github.com/pestalert/pestalert-go/internal/model"
)

func defaultFiles() map[model.AudioCategory]string {
	return map[model.AudioCategory]string{
		model.AudioNormal:    "Reponse.mp3",
		model.AudioAlert:     "Alerte.mp3",
		model.AudioUncertain: "Incertaine.mp3",
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"Reponse.mp3": {Data: []byte("ID3normal")},
		"Alerte.mp3":  {Data: []byte("ID3alert!")},
	}
	c := NewFromFS(fsys, defaultFiles(), time.Minute, nil)

	a, err := c.Resolve(t.Context(), model.AudioAlert)
	require.NoError(t, err)
	assert.Equal(t, model.AudioAlert, a.Category)
	assert.Equal(t, "Alerte.mp3", a.Filename)
	assert.Equal(t, "audio/mpeg", a.MIMEType)
	assert.Equal(t, int64(9), a.Size)
	assert.Equal(t, []byte("ID3alert!"), a.Data)

	// Served from memory after the file disappears
	delete(fsys, "Alerte.mp3")
	again, err := c.Resolve(t.Context(), model.AudioAlert)
	require.NoError(t, err)
	assert.Equal(t, a.Data, again.Data)
	assert.NotSame(t, a, again)

	// Callers own their copy of the bytes
	again.Data[0] = 'X'
	third, err := c.Resolve(t.Context(), model.AudioAlert)
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3alert!"), third.Data)
	assert.Equal(t, []byte("ID3alert!"), a.Data)
}

func TestResolve_Missing(t *testing.T) {
	t.Parallel()

	c := NewFromFS(fstest.MapFS{}, defaultFiles(), time.Minute, nil)

	a, err := c.Resolve(t.Context(), model.AudioUncertain)
	require.Error(t, err)
	assert.Nil(t, a)
	assert.ErrorIs(t, err, ErrAssetMissing)
	assert.True(t, errors.IsNotFound(err))

	// A category with no configured file is missing, not unknown
	partial := NewFromFS(fstest.MapFS{}, map[model.AudioCategory]string{}, time.Minute, nil)
	_, err = partial.Resolve(t.Context(), model.AudioNormal)
	assert.ErrorIs(t, err, ErrAssetMissing)
}

func TestResolve_UnknownCategoryAndCancellation(t *testing.T) {
	t.Parallel()

	c := NewFromFS(fstest.MapFS{}, defaultFiles(), time.Minute, nil)

	_, err := c.Resolve(t.Context(), model.AudioCategory("jingle"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownCategory)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err = c.Resolve(ctx, model.AudioNormal)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, errors.IsCategory(err, errors.CategoryCancellation))
}

func TestCheckAvailabilityAndInfo(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"Reponse.mp3":    {Data: []byte("abc")},
		"Incertaine.mp3": {Mode: os.ModeDir},
	}
	c := NewFromFS(fsys, defaultFiles(), time.Minute, nil)

	av := c.CheckAvailability()
	assert.False(t, av.Available)
	assert.Equal(t, []model.AudioCategory{model.AudioAlert, model.AudioUncertain}, av.Missing)

	info := c.Info(model.AudioNormal)
	assert.True(t, info.Exists)
	assert.Equal(t, int64(3), info.Size)
	assert.Equal(t, "Reponse.mp3", info.Filename)

	assert.False(t, c.Info(model.AudioAlert).Exists)
}

func TestNewFromDirectory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, name := range []string{"Reponse.mp3", "Alerte.mp3", "Incertaine.ogg"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600))
	}

	c := New(conf.AssetSettings{
		Dir:       dir,
		Normal:    "Reponse.mp3",
		Alert:     "Alerte.mp3",
		Uncertain: " Incertaine.ogg ",
	}, nil)

	assert.True(t, c.CheckAvailability().Available)
	a, err := c.Resolve(t.Context(), model.AudioUncertain)
	require.NoError(t, err)
	assert.Equal(t, "audio/ogg", a.MIMEType)
}
