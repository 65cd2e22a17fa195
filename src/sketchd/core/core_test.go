package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bitswalk/sketchforge/src/common/logs"
	"github.com/bitswalk/sketchforge/src/sketchd/db"
	"github.com/bitswalk/sketchforge/src/sketchd/storage"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

const catalogYAML = `components:
  - name: header
    category: general
    setup: "void setup() {\n"
    loop: "void loop() {\n"
  - name: footer
    category: general
    setup: "}\n"
    loop: "}\n"
  - name: blink
    category: pattern
    period: 2
`

func TestSyncCatalogKeepsTestride(t *testing.T) {
	log = logs.NewDiscard()
	setLoggers()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "base.yaml"), []byte(catalogYAML), 0644))

	database, err := db.New(db.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { database.Shutdown() })
	repo := db.NewComponentRepository(database)

	cat, err := syncCatalog(dir, repo)
	require.NoError(t, err)
	require.Equal(t, 3, cat.Len())

	stored, err := repo.List()
	require.NoError(t, err)
	require.Len(t, stored, 3)

	require.NoError(t, repo.SetTestride("blink", "pattern", "/tmp/patterns/blink/blink"))

	cat, err = syncCatalog(dir, repo)
	require.NoError(t, err)
	blink, ok := cat.Lookup("blink", "pattern")
	require.True(t, ok)
	require.Equal(t, "/tmp/patterns/blink/blink", blink.Testride)
}

func TestSyncCatalogMissingDirectory(t *testing.T) {
	log = logs.NewDiscard()
	setLoggers()

	database, err := db.New(db.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { database.Shutdown() })

	cat, err := syncCatalog(filepath.Join(t.TempDir(), "missing"), db.NewComponentRepository(database))
	require.NoError(t, err)
	require.Zero(t, cat.Len())
}

func TestStorageConfigEndpointSelectsS3(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("storage.type", "local")
	viper.Set("storage.s3.endpoint", "http://minio:9000")
	viper.Set("storage.s3.bucket", "firmware")

	cfg := storageConfig()
	require.Equal(t, "s3", cfg.Type)
	require.Equal(t, "firmware", cfg.S3.Bucket)
}

func TestOpenStorageNone(t *testing.T) {
	log = logs.NewDiscard()
	backend, err := openStorage(context.Background(), storage.Config{Type: "none"})
	require.NoError(t, err)
	require.Nil(t, backend)
}

func TestBackupLoopPersistsDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sketchd.db")
	database, err := db.New(db.Config{PersistPath: path})
	require.NoError(t, err)
	t.Cleanup(func() { database.Shutdown() })
	rt := &runtime{database: database}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rt.backupLoop(ctx, 10*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.Eventually(t, func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}
