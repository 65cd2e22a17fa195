package core

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/bitswalk/sketchforge/src/common/cli"
	"github.com/bitswalk/sketchforge/src/sketchd/api"
	"github.com/bitswalk/sketchforge/src/sketchd/build"
	"github.com/bitswalk/sketchforge/src/sketchd/catalog"
	"github.com/bitswalk/sketchforge/src/sketchd/db"
	"github.com/bitswalk/sketchforge/src/sketchd/lookup"
	"github.com/bitswalk/sketchforge/src/sketchd/sketch"
	"github.com/bitswalk/sketchforge/src/sketchd/storage"
	"github.com/bitswalk/sketchforge/src/sketchd/testride"
	"github.com/spf13/viper"
)

// runtime holds the services shared by the server and the one-shot commands
type runtime struct {
	database   *db.Database
	sketches   *db.SketchRepository
	builds     *db.BuildRepository
	components *db.ComponentRepository
	catalog    *catalog.Catalog
	archiver   *storage.Archiver
	pipeline   *build.Pipeline
	finder     *lookup.Finder
	testride   *testride.Runner
}

// setLoggers hands the command logger to every package
func setLoggers() {
	db.SetLogger(log)
	catalog.SetLogger(log)
	sketch.SetLogger(log)
	build.SetLogger(log)
	storage.SetLogger(log)
	lookup.SetLogger(log)
	testride.SetLogger(log)
	api.SetLogger(log)
}

// buildConfig reads the build.* keys
func buildConfig() build.Config {
	return build.Config{
		SketchDir:   cli.GetExpandedString("build.sketch_dir"),
		Tool:        cli.GetExpandedString("build.tool"),
		ObjCopy:     cli.GetExpandedString("build.objcopy"),
		ObjCopyArgs: viper.GetStringSlice("build.objcopy_args"),
		TargetHID:   viper.GetString("build.target_hid"),
		TargetNoHID: viper.GetString("build.target_nohid"),
		SourceExt:   viper.GetString("build.source_ext"),
		MaxSize:     viper.GetInt64("build.max_size"),
		Timeout:     viper.GetDuration("build.timeout"),
	}
}

// storageConfig reads the storage.* keys. An S3 endpoint selects the s3
// backend regardless of storage.type.
func storageConfig() storage.Config {
	storageType := viper.GetString("storage.type")
	endpoint := viper.GetString("storage.s3.endpoint")
	if endpoint != "" {
		storageType = "s3"
	}

	return storage.Config{
		Type: storageType,
		Local: storage.LocalConfig{
			BasePath: viper.GetString("storage.local.path"),
		},
		S3: storage.S3Config{
			Endpoint:        endpoint,
			Region:          viper.GetString("storage.s3.region"),
			Bucket:          viper.GetString("storage.s3.bucket"),
			AccessKeyID:     viper.GetString("storage.s3.access_key"),
			SecretAccessKey: viper.GetString("storage.s3.secret_key"),
			UsePathStyle:    viper.GetBool("storage.s3.path_style"),
		},
	}
}

// testrideConfig reads the testride.* keys
func testrideConfig() testride.Config {
	return testride.Config{
		Dir:      cli.GetExpandedString("testride.dir"),
		Compiler: cli.GetExpandedString("testride.compiler"),
		Timeout:  viper.GetDuration("testride.timeout"),
	}
}

// openRuntime opens the database, syncs the catalog and wires the
// pipeline. The caller must Close the runtime.
func openRuntime(ctx context.Context) (*runtime, error) {
	setLoggers()

	dbPath := viper.GetString("database.path")
	log.Debug("Initializing database", "persist_path", dbPath)
	database, err := db.New(db.Config{
		PersistPath: dbPath,
		LoadOnStart: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if version, err := database.SchemaVersion(); err == nil {
		log.Debug("Database ready", "schema_version", version)
	}

	rt := &runtime{
		database:   database,
		sketches:   db.NewSketchRepository(database),
		builds:     db.NewBuildRepository(database),
		components: db.NewComponentRepository(database),
	}

	rt.catalog, err = syncCatalog(cli.GetExpandedString("catalog.path"), rt.components)
	if err != nil {
		rt.Close()
		return nil, err
	}

	backend, err := openStorage(ctx, storageConfig())
	if err != nil {
		rt.Close()
		return nil, err
	}

	executor := build.NewHostExecutor(nil)
	deps := build.Deps{
		Sketches: rt.sketches,
		Builds:   rt.builds,
		Catalog:  rt.catalog,
		Executor: executor,
	}
	if backend != nil {
		rt.archiver = storage.NewArchiver(backend)
		deps.Archiver = rt.archiver
	}

	rt.pipeline, err = build.NewPipeline(buildConfig(), deps)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("invalid build configuration: %w", err)
	}
	rt.finder = lookup.NewFinder(rt.pipeline.Toolchain(), rt.sketches, "")
	rt.testride = testride.NewRunner(testrideConfig(), executor, rt.catalog, rt.components)

	return rt, nil
}

// Close persists and closes the database
func (rt *runtime) Close() error {
	if err := rt.database.Shutdown(); err != nil {
		log.Error("Failed to persist database", "error", err)
		return err
	}
	return nil
}

// backupLoop persists the database every interval until ctx is done
func (rt *runtime) backupLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := rt.database.SaveToDisk(); err != nil {
				log.Warn("Periodic database backup failed", "error", err)
			}
		}
	}
}

// openStorage creates the artifact backend. A nil backend disables
// archiving.
func openStorage(ctx context.Context, cfg storage.Config) (storage.Backend, error) {
	backend, err := storage.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	if backend == nil {
		log.Debug("Artifact archive disabled")
		return nil, nil
	}

	if s3Backend, ok := backend.(*storage.S3Backend); ok {
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := s3Backend.EnsureBucket(ctx); err != nil {
			log.Warn("S3 bucket not accessible - archiving may fail", "location", s3Backend.Location(), "error", err)
		}
	}

	log.Debug("Storage initialized", "type", backend.Type(), "location", backend.Location())
	return backend, nil
}

// syncCatalog loads the catalog files below dir and mirrors them into the
// components table. Testride paths recorded in the table are carried over
// into the catalog. A missing directory yields an empty catalog.
func syncCatalog(dir string, repo *db.ComponentRepository) (*catalog.Catalog, error) {
	var components []catalog.Component
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		log.Warn("Catalog directory not found, starting with an empty catalog", "path", dir)
	} else {
		components, err = catalog.LoadDir(dir)
		if err != nil {
			return nil, err
		}
	}

	cat, err := catalog.New(components)
	if err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}

	for _, comp := range cat.List() {
		rec := &db.Component{
			Name:        comp.Name,
			Category:    comp.Category,
			PrettyName:  comp.PrettyName,
			Description: comp.Description,
			Global:      comp.Global,
			Setup:       comp.Setup,
			Loop:        comp.Loop,
			Period:      comp.Period,
			Defaults:    comp.Defaults,
		}
		if err := repo.Upsert(rec); err != nil {
			return nil, err
		}
		if rec.Testride != "" {
			if err := cat.SetTestride(comp.Name, comp.Category, rec.Testride); err != nil {
				return nil, err
			}
		}
	}

	log.Info("Catalog loaded", "path", dir, "components", cat.Len())
	return cat, nil
}
