// Package core provides the sketchd commands and server.
package core

import (
	"fmt"
	"os"

	"github.com/bitswalk/sketchforge/src/common/cli"
	"github.com/bitswalk/sketchforge/src/common/logs"
	"github.com/bitswalk/sketchforge/src/common/version"
	"github.com/bitswalk/sketchforge/src/sketchd/api"
	"github.com/bitswalk/sketchforge/src/sketchd/build"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// VersionInfo holds version information - set at build time via ldflags
	VersionInfo = version.New()

	// Global logger instance
	log = logs.NewDefault()

	// Configuration file path
	cfgFile string
)

// Linker variables - these are set via ldflags at build time
var (
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sketchd",
	Short: "Firmware sketch synthesis and build service",
	Long: `sketchd turns declarative sketch configurations into firmware.

It assembles sketch source from a catalog of components, drives the
external toolchain, fingerprints the resulting binary and identifies
uploaded firmware by that fingerprint. Without a subcommand it serves
the HTTP API.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

// Execute runs the root command
func Execute() {
	VersionInfo.Version = Version
	VersionInfo.BuildDate = BuildDate
	VersionInfo.GitCommit = GitCommit

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cli.RegisterConfigFlag(rootCmd, &cfgFile, "/etc/sketchd/sketchd.yaml")
	cli.RegisterLogFlags(rootCmd)

	pf := rootCmd.PersistentFlags()
	pf.String("db-path", "~/.sketchd/sketchd.db", "Path to persist database on shutdown")
	pf.String("catalog", "~/.sketchd/catalog", "Directory of component catalog files")
	pf.String("sketch-dir", "~/.sketchd/sketches", "Root directory of sketch build directories")
	pf.String("storage-type", "local", "Artifact storage backend: 'local', 's3' or 'none'")
	pf.String("storage-path", "~/.sketchd/artifacts", "Local storage path (for local backend)")
	pf.String("s3-endpoint", "", "S3-compatible storage endpoint URL")
	pf.String("s3-region", "us-east-1", "S3 region")
	pf.String("s3-bucket", "sketchd-artifacts", "S3 bucket for build artifacts")
	pf.String("s3-access-key", "", "S3 access key ID")
	pf.String("s3-secret-key", "", "S3 secret access key")
	pf.Bool("s3-path-style", true, "Use path-style addressing for S3")
	pf.StringP("output", "o", "table", "Output format: 'table' or 'json'")

	_ = viper.BindPFlag("database.path", pf.Lookup("db-path"))
	_ = viper.BindPFlag("catalog.path", pf.Lookup("catalog"))
	_ = viper.BindPFlag("build.sketch_dir", pf.Lookup("sketch-dir"))
	_ = viper.BindPFlag("storage.type", pf.Lookup("storage-type"))
	_ = viper.BindPFlag("storage.local.path", pf.Lookup("storage-path"))
	_ = viper.BindPFlag("storage.s3.endpoint", pf.Lookup("s3-endpoint"))
	_ = viper.BindPFlag("storage.s3.region", pf.Lookup("s3-region"))
	_ = viper.BindPFlag("storage.s3.bucket", pf.Lookup("s3-bucket"))
	_ = viper.BindPFlag("storage.s3.access_key", pf.Lookup("s3-access-key"))
	_ = viper.BindPFlag("storage.s3.secret_key", pf.Lookup("s3-secret-key"))
	_ = viper.BindPFlag("storage.s3.path_style", pf.Lookup("s3-path-style"))
	_ = viper.BindPFlag("output", pf.Lookup("output"))

	// Server flags
	pf.IntP("port", "p", 8080, "Port to listen on")
	pf.StringP("bind", "b", "0.0.0.0", "Address to bind to")
	_ = viper.BindPFlag("server.port", pf.Lookup("port"))
	_ = viper.BindPFlag("server.bind", pf.Lookup("bind"))

	setDefaults()

	rootCmd.AddCommand(
		newServeCmd(),
		newCompileCmd(),
		newImportCmd(),
		newLookupCmd(),
		newCheckCmd(),
		newCatalogCmd(),
		newVersionCmd(),
	)
}

// setDefaults registers the default of every configuration key
func setDefaults() {
	b := build.DefaultConfig()

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.bind", "0.0.0.0")

	limits := api.DefaultRateLimitConfig()
	viper.SetDefault("server.rate_limit.enabled", limits.Enabled)
	viper.SetDefault("server.rate_limit.compiles_per_min", limits.CompilesPerMin)
	viper.SetDefault("server.rate_limit.lookups_per_min", limits.LookupsPerMin)

	viper.SetDefault("database.path", "~/.sketchd/sketchd.db")
	viper.SetDefault("database.backup_interval", "10m")
	viper.SetDefault("catalog.path", "~/.sketchd/catalog")

	viper.SetDefault("build.sketch_dir", b.SketchDir)
	viper.SetDefault("build.tool", b.Tool)
	viper.SetDefault("build.objcopy", b.ObjCopy)
	viper.SetDefault("build.objcopy_args", b.ObjCopyArgs)
	viper.SetDefault("build.target_hid", b.TargetHID)
	viper.SetDefault("build.target_nohid", b.TargetNoHID)
	viper.SetDefault("build.source_ext", b.SourceExt)
	viper.SetDefault("build.max_size", b.MaxSize)
	viper.SetDefault("build.timeout", b.Timeout)

	viper.SetDefault("testride.dir", "~/.sketchd/patterns")
	viper.SetDefault("testride.compiler", "/usr/bin/gcc")
	viper.SetDefault("testride.timeout", "1m")

	viper.SetDefault("storage.type", "local")
	viper.SetDefault("storage.local.path", "~/.sketchd/artifacts")
	viper.SetDefault("storage.s3.region", "us-east-1")
	viper.SetDefault("storage.s3.bucket", "sketchd-artifacts")
	viper.SetDefault("storage.s3.path_style", true)
}

// initConfig reads in config file and ENV variables if set
func initConfig() error {
	opts := cli.DefaultConfigOptions("sketchd", "SKETCHD")
	opts.ConfigFile = cfgFile

	if err := cli.InitConfig(opts); err != nil {
		return err
	}

	log = cli.InitLogger("sketchd")
	return nil
}
