package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ulikunitz/xz"
)

const firmwarePrefix = "firmware/"

// FirmwareKey returns the archive key of a firmware binary
func FirmwareKey(digest string) string {
	return firmwarePrefix + digest + ".bin"
}

// SourceKey returns the archive key of a compressed sketch source
func SourceKey(digest, ext string) string {
	return fmt.Sprintf("sources/%s.%s.xz", digest, ext)
}

// Archiver stores build outputs keyed by their binary digest
type Archiver struct {
	backend Backend
}

// NewArchiver creates an archiver on top of a backend
func NewArchiver(backend Backend) *Archiver {
	return &Archiver{backend: backend}
}

// Backend returns the underlying storage backend
func (a *Archiver) Backend() Backend {
	return a.backend
}

// Archive uploads the firmware binary and an xz-compressed copy of the
// rendered source
func (a *Archiver) Archive(ctx context.Context, digest, binPath, sourcePath, ext string) error {
	if err := a.uploadFile(ctx, FirmwareKey(digest), binPath); err != nil {
		return err
	}

	source, err := os.ReadFile(sourcePath)
	if err != nil {
		return fmt.Errorf("failed to read source %s: %w", sourcePath, err)
	}

	var buf bytes.Buffer
	w, err := xz.NewWriter(&buf)
	if err != nil {
		return fmt.Errorf("failed to create xz writer: %w", err)
	}
	if _, err := w.Write(source); err != nil {
		return fmt.Errorf("failed to compress source: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish compressed source: %w", err)
	}

	key := SourceKey(digest, ext)
	if err := a.backend.Upload(ctx, key, &buf, int64(buf.Len()), "application/x-xz"); err != nil {
		return err
	}

	log.Debug("Archived build outputs", "sha256", digest, "backend", a.backend.Type())
	return nil
}

func (a *Archiver) uploadFile(ctx context.Context, key, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}

	return a.backend.Upload(ctx, key, file, stat.Size(), "application/octet-stream")
}

// OpenFirmware opens an archived firmware binary
func (a *Archiver) OpenFirmware(ctx context.Context, digest string) (io.ReadCloser, *ObjectInfo, error) {
	return a.backend.Download(ctx, FirmwareKey(digest))
}

// FetchSource downloads and decompresses an archived sketch source
func (a *Archiver) FetchSource(ctx context.Context, digest, ext string) (string, error) {
	body, _, err := a.backend.Download(ctx, SourceKey(digest, ext))
	if err != nil {
		return "", err
	}
	defer body.Close()

	r, err := xz.NewReader(body)
	if err != nil {
		return "", fmt.Errorf("failed to open compressed source: %w", err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to decompress source: %w", err)
	}
	return string(data), nil
}

// Remove deletes the firmware binary and source archived under digest.
// Missing objects are not an error.
func (a *Archiver) Remove(ctx context.Context, digest, ext string) error {
	for _, key := range []string{FirmwareKey(digest), SourceKey(digest, ext)} {
		if err := a.backend.Delete(ctx, key); err != nil {
			return err
		}
	}
	log.Debug("Removed archived build outputs", "sha256", digest)
	return nil
}

// ArchivedFirmware is one archived firmware binary
type ArchivedFirmware struct {
	SHA256       string `json:"sha256"`
	Size         int64  `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// ListFirmware returns the archived firmware binaries
func (a *Archiver) ListFirmware(ctx context.Context) ([]ArchivedFirmware, error) {
	objects, err := a.backend.List(ctx, firmwarePrefix)
	if err != nil {
		return nil, err
	}

	out := make([]ArchivedFirmware, 0, len(objects))
	for _, obj := range objects {
		name := strings.TrimPrefix(obj.Key, firmwarePrefix)
		if !strings.HasSuffix(name, ".bin") || strings.Contains(name, "/") {
			continue
		}
		out = append(out, ArchivedFirmware{
			SHA256:       strings.TrimSuffix(name, ".bin"),
			Size:         obj.Size,
			LastModified: obj.LastModified,
		})
	}
	return out, nil
}
