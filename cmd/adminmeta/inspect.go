package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pitabwire/adminmeta/internal/adminmeta"
	"github.com/pitabwire/adminmeta/internal/config"
	"github.com/pitabwire/adminmeta/internal/graphql"
	"github.com/pitabwire/adminmeta/internal/views"
	"github.com/pitabwire/adminmeta/model"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Build the admin metadata and print its lists",
	Long: `inspect fetches the admin metadata from the configured source, or from the
snapshot given with --file, builds it against the configured view modules
and prints every list with its fields. It fails when the metadata does not
match the view modules.`,
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().String("file", "", "read metadata from a JSON or YAML snapshot instead")
	inspectCmd.Flags().Bool("fields", false, "print the fields of each list")
	inspectCmd.Flags().Bool("json", false, "print the metadata descriptor as JSON")
	inspectCmd.Flags().Bool("no-color", false, "disable colored output")
}

func runInspect(cmd *cobra.Command, args []string) error {
	file, _ := cmd.Flags().GetString("file")
	showFields, _ := cmd.Flags().GetBool("fields")
	asJSON, _ := cmd.Flags().GetBool("json")
	if noColor, _ := cmd.Flags().GetBool("no-color"); noColor {
		color.NoColor = true
	}

	var cfg *config.Config
	if file != "" {
		// A snapshot needs no server settings.
		cfg = config.Defaults()
		cfg.Meta.Source = "file"
		cfg.Meta.File = file
	} else {
		loaded, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	meta, err := buildMeta(cmd.Context(), cfg)
	if err != nil {
		color.New(color.FgRed, color.Bold).Fprintln(cmd.ErrOrStderr(), "✗ admin metadata is invalid")
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(meta.Descriptor(model.CapabilitySet{"*": true}))
	}
	printLists(out, meta, showFields)
	return nil
}

func buildMeta(ctx context.Context, cfg *config.Config) (*adminmeta.Meta, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	registry, err := views.FromNames(cfg.Meta.Views, nil)
	if err != nil {
		return nil, err
	}
	var client *graphql.Client
	if cfg.Meta.Source != "file" {
		client = graphql.NewClient(cfg.GraphQL)
	}
	result, err := metaSource(cfg, client).Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return adminmeta.Build(result, registry)
}

func printLists(w io.Writer, meta *adminmeta.Meta, showFields bool) {
	bold := color.New(color.Bold)
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	faint := color.New(color.Faint)

	green.Fprintf(w, "✓ %d lists, checksum %s\n\n", len(meta.Order), meta.Checksum)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	bold.Fprintln(tw, "LIST\tPATH\tLABEL FIELD\tPAGE SIZE\tFIELDS\tFLAGS")
	for _, key := range meta.Order {
		l := meta.Lists[key]
		fmt.Fprintf(tw, "%s\t/%s\t%s\t%d\t%d\t%s\n",
			cyan.Sprint(l.Key), l.Path, l.LabelField, l.PageSize, len(l.Fields), listFlags(l))
	}
	tw.Flush()

	if !showFields {
		return
	}
	for _, key := range meta.Order {
		l := meta.Lists[key]
		fmt.Fprintln(w)
		bold.Fprintf(w, "%s\n", l.Key)
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		faint.Fprintln(tw, "  FIELD\tVIEW\tLIST\tCREATE\tITEM\tFILTERS")
		for _, f := range l.OrderedFields() {
			d := f.Descriptor()
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\t%d\n",
				d.Path, d.View, d.ListMode, d.CreateMode, d.ItemMode, len(d.Filters))
		}
		tw.Flush()
	}
}

func listFlags(l *adminmeta.List) string {
	var flags []string
	if l.IsSingleton {
		flags = append(flags, "singleton")
	}
	if l.HideCreate {
		flags = append(flags, "hide-create")
	}
	if l.HideDelete {
		flags = append(flags, "hide-delete")
	}
	if l.HideNavigation {
		flags = append(flags, "hide-navigation")
	}
	if len(flags) == 0 {
		return "-"
	}
	return strings.Join(flags, ",")
}
