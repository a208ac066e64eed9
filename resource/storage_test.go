package resource

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	qspruntime "github.com/wippyai/qsp-runtime"
	"github.com/wippyai/qsp-runtime/errors"
)

func gameDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "Images"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Images", "Door.png"), []byte("png"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "game.qsp"), []byte("qsp"), 0o644))
	return dir
}

func TestHandleRoundTrip(t *testing.T) {
	dir := t.TempDir()
	h := HandleFor(dir)
	p, err := PathOf(h)
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean(dir), filepath.Clean(p))

	_, err = PathOf("content://x")
	assert.True(t, errors.IsKind(err, errors.KindInvalidInput))
}

func TestResolveRead(t *testing.T) {
	dir := gameDir(t)
	s := NewLocalStorage()

	h, err := s.Resolve(HandleFor(dir), `Images\Door.png`, qspruntime.AccessRead, "image/png")
	require.NoError(t, err)
	assert.True(t, s.Readable(h))

	// case-insensitive segment fallback
	h2, err := s.Resolve(HandleFor(dir), "images/door.PNG", qspruntime.AccessRead, "")
	require.NoError(t, err)
	assert.Equal(t, h, h2)

	_, err = s.Resolve(HandleFor(dir), "missing.png", qspruntime.AccessRead, "")
	assert.True(t, errors.IsKind(err, errors.KindResolution))

	_, err = s.Resolve(HandleFor(dir), "Images", qspruntime.AccessRead, "")
	assert.Error(t, err, "directories are not readable files")
}

func TestResolveRejectsEscapes(t *testing.T) {
	dir := gameDir(t)
	s := NewLocalStorage()

	for _, p := range []string{"../game.qsp", `..\..\etc\passwd`, "a/../../x", "http://example.com/a.png", ""} {
		_, err := s.Resolve(HandleFor(dir), p, qspruntime.AccessRead, "")
		assert.Error(t, err, p)
	}
}

func TestResolveWrite(t *testing.T) {
	dir := gameDir(t)
	s := NewLocalStorage()

	h, err := s.Resolve(HandleFor(dir), "save1.sav", qspruntime.AccessWrite, "")
	require.NoError(t, err)
	assert.False(t, s.Readable(h))

	w, err := s.Create(h)
	require.NoError(t, err)
	_, err = w.Write([]byte("state"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := s.Open(h)
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "state", string(data))

	_, err = s.Resolve(HandleFor(dir), "nodir/save.sav", qspruntime.AccessWrite, "")
	assert.Error(t, err)
}

func TestRoots(t *testing.T) {
	dir := gameDir(t)
	other := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(other, "x.qsp"), nil, 0o644))

	s := NewLocalStorage(dir)
	_, err := s.Resolve(HandleFor(dir), "game.qsp", qspruntime.AccessRead, "")
	require.NoError(t, err)

	outside := HandleFor(filepath.Join(other, "x.qsp"))
	_, err = s.Resolve(HandleFor(dir), string(outside), qspruntime.AccessRead, "")
	assert.Error(t, err)
	assert.False(t, s.Readable(outside))
	_, err = s.Open(outside)
	assert.Error(t, err)
}
