package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"intel-mcp/internal/kv"
)

var convertOpts struct {
	level   int
	flatten bool
	noSlug  bool
	prefix  string
	ndjson  bool
	pretty  bool
}

var importWatch bool

func init() {
	f := kvConvertCmd.Flags()
	f.IntVar(&convertOpts.level, "level", 2, "Heading level that starts a section (1-6)")
	f.BoolVar(&convertOpts.flatten, "flatten", false, "One record per heading at or below --level, keyed parent/child")
	f.BoolVar(&convertOpts.noSlug, "no-slug", false, "Keep heading titles verbatim in keys")
	f.StringVar(&convertOpts.prefix, "prefix", "", "Prefix every key with PREFIX/")
	f.BoolVar(&convertOpts.ndjson, "ndjson", false, "Write NDJSON instead of a JSON array")
	f.BoolVar(&convertOpts.pretty, "pretty", false, "Indent the JSON array")

	kvImportCmd.Flags().BoolVar(&importWatch, "watch", false, "Keep running and re-import on change")

	kvCmd.AddCommand(kvConvertCmd, kvImportCmd, kvGetCmd)
	rootCmd.AddCommand(kvCmd)
}

var kvCmd = &cobra.Command{
	Use:   "kv",
	Short: "Manage the profile key-value store",
}

var kvConvertCmd = &cobra.Command{
	Use:   "convert <in.md> [out.json]",
	Short: "Split a markdown document into key-value records",
	Example: `  intel-mcp kv convert profile.md profile.json --pretty
  intel-mcp kv convert profile.md --flatten --level 2 --prefix org`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if convertOpts.level < 1 || convertOpts.level > 6 {
			return fmt.Errorf("--level must be between 1 and 6, got %d", convertOpts.level)
		}
		if convertOpts.ndjson && convertOpts.pretty {
			return errors.New("--pretty cannot be combined with --ndjson")
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		records := kv.Convert(string(data), kv.Options{
			Level:   convertOpts.level,
			Flatten: convertOpts.flatten,
			NoSlug:  convertOpts.noSlug,
			Prefix:  convertOpts.prefix,
		})

		if len(args) == 2 {
			if err := writeBulkFile(args[1], records, convertOpts.ndjson, convertOpts.pretty); err != nil {
				return err
			}
		} else if err := kv.WriteBulk(cmd.OutOrStdout(), records, convertOpts.ndjson, convertOpts.pretty); err != nil {
			return err
		}
		log.Info("converted markdown", "input", args[0], "records", len(records))
		return nil
	},
}

var kvImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Load markdown or bulk JSON into the sqlite store",
	Long:  "Replace the contents of the store at --kv-path with the records from a markdown file (split at level 2) or a bulk JSON/NDJSON file.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := kv.Open(cfg.KVPath)
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := kv.Import(cmd.Context(), store, args[0], sourceOptions())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d records into %s\n", n, cfg.KVPath)
		if !importWatch {
			return nil
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		log.Info("watching for changes", "path", args[0])
		return kv.Watch(ctx, store, args[0], sourceOptions(), 0)
	},
}

var kvGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print the value stored under key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := kv.Open(cfg.KVPath)
		if err != nil {
			return err
		}
		defer store.Close()

		v, ok, err := store.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("key %q not found", args[0])
		}
		fmt.Fprintln(cmd.OutOrStdout(), v)
		return nil
	},
}

// writeBulkFile writes records to path, reporting flush and close failures.
func writeBulkFile(path string, records []kv.Record, ndjson, pretty bool) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()
	bw := bufio.NewWriter(f)
	if err := kv.WriteBulk(bw, records, ndjson, pretty); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
