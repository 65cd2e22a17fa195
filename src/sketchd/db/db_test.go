package db

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *Database {
	t.Helper()
	database, err := New(Config{})
	require.NoError(t, err)
	t.Cleanup(func() { database.Shutdown() })
	return database
}

func TestSketchCRUD(t *testing.T) {
	repo := NewSketchRepository(newTestDB(t))

	s := &Sketch{Name: "blinky", Config: `{"general":{}}`}
	require.NoError(t, repo.Create(s))
	require.NotEmpty(t, s.ID)

	got, err := repo.GetByID(s.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "blinky", got.Name)
	require.Equal(t, `{"general":{}}`, got.Config)
	require.False(t, got.Fingerprinted())

	require.NoError(t, repo.UpdateConfig(s.ID, `{"led":{}}`))
	got, err = repo.GetByID(s.ID)
	require.NoError(t, err)
	require.Equal(t, `{"led":{}}`, got.Config)

	missing, err := repo.GetByID("does-not-exist")
	require.NoError(t, err)
	require.Nil(t, missing)

	require.NoError(t, repo.Delete(s.ID))
	require.Error(t, repo.Delete(s.ID))
}

func TestSetBuildDirIfUnset(t *testing.T) {
	repo := NewSketchRepository(newTestDB(t))
	s := &Sketch{Config: "{}"}
	require.NoError(t, repo.Create(s))

	stored, err := repo.SetBuildDirIfUnset(s.ID, "/sketches/a")
	require.NoError(t, err)
	require.Equal(t, "/sketches/a", stored)

	// a second allocator loses and adopts the first value
	stored, err = repo.SetBuildDirIfUnset(s.ID, "/sketches/b")
	require.NoError(t, err)
	require.Equal(t, "/sketches/a", stored)

	_, err = repo.SetBuildDirIfUnset("missing", "/sketches/c")
	require.Error(t, err)
}

func TestSaveFingerprintUnlessDuplicate(t *testing.T) {
	repo := NewSketchRepository(newTestDB(t))
	a := &Sketch{Config: "{}"}
	b := &Sketch{Config: "{}"}
	require.NoError(t, repo.Create(a))
	require.NoError(t, repo.Create(b))

	owner, err := repo.SaveFingerprintUnlessDuplicate(a.ID, "abc", 100)
	require.NoError(t, err)
	require.Empty(t, owner)

	// saving the same fingerprint on its owner again is not a duplicate
	owner, err = repo.SaveFingerprintUnlessDuplicate(a.ID, "abc", 100)
	require.NoError(t, err)
	require.Empty(t, owner)

	owner, err = repo.SaveFingerprintUnlessDuplicate(b.ID, "abc", 100)
	require.NoError(t, err)
	require.Equal(t, a.ID, owner)

	gotB, err := repo.GetByID(b.ID)
	require.NoError(t, err)
	require.False(t, gotB.Fingerprinted())

	// same digest with another size is a different fingerprint
	owner, err = repo.SaveFingerprintUnlessDuplicate(b.ID, "abc", 101)
	require.NoError(t, err)
	require.Empty(t, owner)

	list, err := repo.ListFingerprinted()
	require.NoError(t, err)
	require.Len(t, list, 2)

	bySHA, err := repo.GetBySHA256("abc")
	require.NoError(t, err)
	require.Equal(t, a.ID, bySHA.ID)

	dup, err := repo.FindByFingerprint(100, "abc", b.ID)
	require.NoError(t, err)
	require.Equal(t, a.ID, dup.ID)
}

func TestSaveFingerprintConcurrent(t *testing.T) {
	repo := NewSketchRepository(newTestDB(t))

	const n = 8
	ids := make([]string, n)
	for i := range ids {
		s := &Sketch{Config: "{}"}
		require.NoError(t, repo.Create(s))
		ids[i] = s.ID
	}

	var wg sync.WaitGroup
	owners := make([]string, n)
	errs := make([]error, n)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			owners[i], errs[i] = repo.SaveFingerprintUnlessDuplicate(ids[i], "same", 42)
		}(i)
	}
	wg.Wait()

	saved := 0
	for i := range ids {
		require.NoError(t, errs[i])
		if owners[i] == "" {
			saved++
		}
	}
	require.Equal(t, 1, saved)

	list, err := repo.ListFingerprinted()
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestComponentUpsertKeepsTestride(t *testing.T) {
	repo := NewComponentRepository(newTestDB(t))

	c := &Component{Name: "wave", Category: "pattern", Global: "v1", Defaults: map[string]string{"a": "1"}}
	require.NoError(t, repo.Upsert(c))
	id := c.ID

	require.NoError(t, repo.SetTestride("wave", "pattern", "/rides/wave/wave"))

	updated := &Component{Name: "wave", Category: "pattern", Global: "v2"}
	require.NoError(t, repo.Upsert(updated))
	require.Equal(t, id, updated.ID)
	require.Equal(t, "v2", updated.Global)
	require.Equal(t, "/rides/wave/wave", updated.Testride)
	require.Nil(t, updated.Defaults)

	list, err := repo.List()
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.Error(t, repo.SetTestride("missing", "pattern", "/x"))
}

func TestBuildHistory(t *testing.T) {
	database := newTestDB(t)
	sketches := NewSketchRepository(database)
	builds := NewBuildRepository(database)

	s := &Sketch{Config: "{}"}
	require.NoError(t, sketches.Create(s))

	ok := &Build{SketchID: s.ID, Target: "LilyPadUSB"}
	require.NoError(t, builds.Create(ok))
	require.NoError(t, builds.MarkSucceeded(ok.ID, "abc", 10, ""))

	dup := &Build{SketchID: s.ID}
	require.NoError(t, builds.Create(dup))
	require.NoError(t, builds.MarkSucceeded(dup.ID, "abc", 10, "other"))

	failed := &Build{SketchID: s.ID}
	require.NoError(t, builds.Create(failed))
	require.NoError(t, builds.MarkFailed(failed.ID, "compile", "boom"))

	got, err := builds.GetByID(ok.ID)
	require.NoError(t, err)
	require.Equal(t, BuildStatusSucceeded, got.Status)
	require.NotNil(t, got.CompletedAt)

	got, err = builds.GetByID(dup.ID)
	require.NoError(t, err)
	require.Equal(t, BuildStatusDuplicate, got.Status)
	require.Equal(t, "other", got.DuplicateOf)

	got, err = builds.GetByID(failed.ID)
	require.NoError(t, err)
	require.Equal(t, BuildStatusFailed, got.Status)
	require.Equal(t, "compile", got.ErrorStage)
	require.Equal(t, "boom", got.ErrorMessage)

	list, err := builds.ListBySketch(s.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)

	require.Error(t, builds.MarkFailed("missing", "compile", "x"))
}

func TestPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sketchd.db")

	first, err := New(Config{PersistPath: path, LoadOnStart: true})
	require.NoError(t, err)
	s := &Sketch{Config: `{"general":{}}`}
	require.NoError(t, NewSketchRepository(first).Create(s))
	_, err = NewSketchRepository(first).SaveFingerprintUnlessDuplicate(s.ID, "abc", 7)
	require.NoError(t, err)
	require.NoError(t, first.Shutdown())

	second, err := New(Config{PersistPath: path, LoadOnStart: true})
	require.NoError(t, err)
	defer second.Shutdown()

	got, err := NewSketchRepository(second).GetByID(s.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "abc", got.SHA256)
	require.Equal(t, int64(7), got.Size)
}

func TestUpdateConfigClearsFingerprint(t *testing.T) {
	repo := NewSketchRepository(newTestDB(t))

	s := &Sketch{Config: `{"led":{"led":true}}`}
	require.NoError(t, repo.Create(s))
	_, err := repo.SaveFingerprintUnlessDuplicate(s.ID, "abc", 7)
	require.NoError(t, err)

	require.NoError(t, repo.UpdateConfig(s.ID, `{"led":{"led":false}}`))
	got, err := repo.GetByID(s.ID)
	require.NoError(t, err)
	require.False(t, got.Fingerprinted())
	require.Equal(t, `{"led":{"led":false}}`, got.Config)

	require.Error(t, repo.UpdateConfig("does-not-exist", `{}`))
}

func TestSchemaVersion(t *testing.T) {
	version, err := newTestDB(t).SchemaVersion()
	require.NoError(t, err)
	require.Equal(t, 2, version)
}

func TestSaveToDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sketchd.db")

	database, err := New(Config{PersistPath: path})
	require.NoError(t, err)
	defer database.Shutdown()

	s := &Sketch{Config: `{"general":{}}`}
	require.NoError(t, NewSketchRepository(database).Create(s))
	require.NoError(t, database.SaveToDisk())
	require.FileExists(t, path)

	backup, err := New(Config{PersistPath: path, LoadOnStart: true})
	require.NoError(t, err)
	defer backup.Shutdown()

	got, err := NewSketchRepository(backup).GetByID(s.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
}
