package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newLocal(t *testing.T) *LocalBackend {
	t.Helper()
	b, err := NewLocal(LocalConfig{BasePath: t.TempDir()})
	require.NoError(t, err)
	return b
}

func TestLocalBackend(t *testing.T) {
	ctx := context.Background()
	b := newLocal(t)
	require.NoError(t, b.Ping(ctx))
	require.Equal(t, "local", b.Type())

	require.NoError(t, b.Upload(ctx, "firmware/abc.bin", bytes.NewReader([]byte("data")), 4, ""))

	ok, err := b.Exists(ctx, "firmware/abc.bin")
	require.NoError(t, err)
	require.True(t, ok)

	body, info, err := b.Download(ctx, "firmware/abc.bin")
	require.NoError(t, err)
	data, err := io.ReadAll(body)
	body.Close()
	require.NoError(t, err)
	require.Equal(t, "data", string(data))
	require.Equal(t, int64(4), info.Size)

	objs, err := b.List(ctx, "firmware/")
	require.NoError(t, err)
	require.Len(t, objs, 1)
	require.Equal(t, "firmware/abc.bin", objs[0].Key)

	require.NoError(t, b.Delete(ctx, "firmware/abc.bin"))
	ok, err = b.Exists(ctx, "firmware/abc.bin")
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, b.Delete(ctx, "firmware/abc.bin"))

	_, _, err = b.Download(ctx, "firmware/abc.bin")
	require.Error(t, err)
}

func TestLocalBackendSizeMismatch(t *testing.T) {
	ctx := context.Background()
	b := newLocal(t)

	err := b.Upload(ctx, "x.bin", bytes.NewReader([]byte("abc")), 10, "")
	require.Error(t, err)

	ok, err := b.Exists(ctx, "x.bin")
	require.NoError(t, err)
	require.False(t, ok)

	objs, err := b.List(ctx, "")
	require.NoError(t, err)
	require.Empty(t, objs)
}

func TestLocalBackendTraversal(t *testing.T) {
	b := newLocal(t)
	require.True(t, strings.HasPrefix(b.fullPath("../../etc/passwd"), b.Location()))
	require.True(t, strings.HasPrefix(b.fullPath("/abs/key"), b.Location()))
}

func TestNewBackend(t *testing.T) {
	b, err := New(Config{Type: "none"})
	require.NoError(t, err)
	require.Nil(t, b)

	_, err = New(Config{Type: "tape"})
	require.Error(t, err)

	b, err = New(Config{Type: "local", Local: LocalConfig{BasePath: t.TempDir()}})
	require.NoError(t, err)
	require.Equal(t, "local", b.Type())

	_, err = New(Config{Type: "s3"})
	require.Error(t, err)
}

func TestArchiver(t *testing.T) {
	ctx := context.Background()
	b := newLocal(t)
	a := NewArchiver(b)

	dir := t.TempDir()
	bin := filepath.Join(dir, "firmware.bin")
	src := filepath.Join(dir, "sketch.ino")
	require.NoError(t, os.WriteFile(bin, []byte{0x0c, 0x94, 0x00}, 0644))
	require.NoError(t, os.WriteFile(src, []byte("void setup() {}\nvoid loop() {}\n"), 0644))

	require.NoError(t, a.Archive(ctx, "deadbeef", bin, src, "ino"))

	ok, err := b.Exists(ctx, "firmware/deadbeef.bin")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = b.Exists(ctx, "sources/deadbeef.ino.xz")
	require.NoError(t, err)
	require.True(t, ok)

	source, err := a.FetchSource(ctx, "deadbeef", "ino")
	require.NoError(t, err)
	require.Equal(t, "void setup() {}\nvoid loop() {}\n", source)

	body, info, err := a.OpenFirmware(ctx, "deadbeef")
	require.NoError(t, err)
	defer body.Close()
	require.Equal(t, int64(3), info.Size)

	require.Error(t, a.Archive(ctx, "missing", filepath.Join(dir, "nope.bin"), src, "ino"))
}

func TestArchiverListAndRemove(t *testing.T) {
	ctx := context.Background()
	b := newLocal(t)
	a := NewArchiver(b)

	dir := t.TempDir()
	bin := filepath.Join(dir, "firmware.bin")
	src := filepath.Join(dir, "sketch.ino")
	require.NoError(t, os.WriteFile(bin, []byte{0x01, 0x02}, 0644))
	require.NoError(t, os.WriteFile(src, []byte("void loop() {}\n"), 0644))

	require.NoError(t, a.Archive(ctx, "aaaa", bin, src, "ino"))
	require.NoError(t, a.Archive(ctx, "bbbb", bin, src, "ino"))

	listed, err := a.ListFirmware(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	digests := []string{listed[0].SHA256, listed[1].SHA256}
	require.ElementsMatch(t, []string{"aaaa", "bbbb"}, digests)
	require.Equal(t, int64(2), listed[0].Size)

	require.NoError(t, a.Remove(ctx, "aaaa", "ino"))
	ok, err := b.Exists(ctx, SourceKey("aaaa", "ino"))
	require.NoError(t, err)
	require.False(t, ok)

	listed, err = a.ListFirmware(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Equal(t, "bbbb", listed[0].SHA256)

	// removing twice is harmless
	require.NoError(t, a.Remove(ctx, "aaaa", "ino"))
}
