package core

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/bitswalk/sketchforge/src/common/output"
	"github.com/bitswalk/sketchforge/src/sketchd/build"
	"github.com/bitswalk/sketchforge/src/sketchd/db"
	"github.com/bitswalk/sketchforge/src/sketchd/sketch"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// withRuntime runs fn with an open runtime and a context cancelled on
// SIGINT or SIGTERM
func withRuntime(fn func(ctx context.Context, rt *runtime) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}

	err = fn(ctx, rt)
	if closeErr := rt.Close(); err == nil {
		err = closeErr
	}
	return err
}

func printer(cmd *cobra.Command) *output.Printer {
	return output.New(cmd.OutOrStdout(), viper.GetString("output"))
}

func sketchFields(s *db.Sketch) [][2]string {
	fields := [][2]string{{"ID", s.ID}}
	if s.Name != "" {
		fields = append(fields, [2]string{"Name", s.Name})
	}
	if s.BuildDir != "" {
		fields = append(fields, [2]string{"Build dir", s.BuildDir})
	}
	if s.Fingerprinted() {
		fields = append(fields,
			[2]string{"SHA256", s.SHA256},
			[2]string{"Size", strconv.FormatInt(s.Size, 10)},
		)
	}
	return fields
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func newCompileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compile <sketch-id>",
		Short: "Build a stored sketch and fingerprint its binary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(func(ctx context.Context, rt *runtime) error {
				res, err := rt.pipeline.Compile(ctx, args[0])
				if err != nil {
					return err
				}

				fields := [][2]string{
					{"Sketch", res.SketchID},
					{"Target", res.Target},
					{"Build dir", res.BuildDir},
					{"SHA256", res.Fingerprint.SHA256},
					{"Size", strconv.FormatInt(res.Fingerprint.Size, 10)},
				}
				if res.DuplicateOf != "" {
					fields = append(fields, [2]string{"Duplicate of", res.DuplicateOf})
				}
				return printer(cmd).PrintFields(res, fields)
			})
		},
	}
}

func newImportCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "import <config.json>",
		Short: "Create a sketch from a configuration file",
		Long: `Create a sketch from a configuration file.

The file holds a JSON object of categories, each mapping component names
to true, false, a blob name or an object of template parameters. Comments
are allowed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			cfg, err := sketch.ParseConfig(data)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			canonical, err := cfg.MarshalJSON()
			if err != nil {
				return err
			}

			return withRuntime(func(ctx context.Context, rt *runtime) error {
				s := &db.Sketch{Name: name, Config: string(canonical)}
				if err := rt.sketches.Create(s); err != nil {
					return err
				}
				log.Info("Sketch imported", "sketch_id", s.ID, "file", args[0])
				return printer(cmd).PrintFields(s, sketchFields(s))
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Human-readable sketch name")
	return cmd
}

func newLookupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <firmware.hex>",
		Short: "Identify the sketch that produced a firmware image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}

			return withRuntime(func(ctx context.Context, rt *runtime) error {
				s, err := rt.finder.FindByBinary(ctx, string(data))
				if err != nil {
					return err
				}
				if s == nil {
					return fmt.Errorf("no sketch matches %s", args[0])
				}
				return printer(cmd).PrintFields(s, sketchFields(s))
			})
		},
	}
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <firmware.bin>",
		Short: "Fingerprint a firmware binary and report whether a sketch owns it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(func(ctx context.Context, rt *runtime) error {
				fp, known, err := rt.pipeline.Check(args[0])
				if err != nil {
					return err
				}
				result := struct {
					build.Fingerprint
					Known bool `json:"known"`
				}{fp, known}
				return printer(cmd).PrintFields(result, [][2]string{
					{"SHA256", fp.SHA256},
					{"Size", strconv.FormatInt(fp.Size, 10)},
					{"Known", strconv.FormatBool(known)},
				})
			})
		},
	}
}

func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the component catalog",
	}

	var category string
	list := &cobra.Command{
		Use:   "list",
		Short: "List catalog components",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(func(ctx context.Context, rt *runtime) error {
				components := rt.catalog.List()
				if category != "" {
					components = rt.catalog.ByCategory(category)
				}

				p := printer(cmd)
				if p.JSON() {
					return p.PrintJSON(components)
				}
				rows := make([][]string, 0, len(components))
				for _, c := range components {
					rows = append(rows, []string{c.Category, c.Name, c.PrettyName, c.Testride})
				}
				return p.PrintTable([]string{"CATEGORY", "NAME", "PRETTY NAME", "TESTRIDE"}, rows)
			})
		},
	}
	list.Flags().StringVar(&category, "category", "", "Only list components of this category")

	var all bool
	testrideCmd := &cobra.Command{
		Use:   "testride [pattern]",
		Short: "Compile a pattern into a host program for validation",
		Args: func(cmd *cobra.Command, args []string) error {
			if all {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(func(ctx context.Context, rt *runtime) error {
				if all {
					built := rt.testride.CompileAll(ctx)
					fmt.Fprintf(cmd.OutOrStdout(), "%d testride programs built\n", built)
					return nil
				}
				program, err := rt.testride.Compile(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), program)
				return nil
			})
		},
	}
	testrideCmd.Flags().BoolVar(&all, "all", false, "Build every pattern")

	cmd.AddCommand(list, testrideCmd)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := printer(cmd)
			if p.JSON() {
				return p.PrintJSON(VersionInfo.Map())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sketchd %s\n", VersionInfo.Full())
			return nil
		},
	}
}
