package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kalambet/designgen/internal/matching"
	"github.com/kalambet/designgen/internal/storage"
)

var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "Manage the component library used for matching",
}

// withLibrary opens the store and matching collaborators for a library
// subcommand. Generation settings are not validated here.
func withLibrary(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx, cfg, engineUsage{})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

var libraryIndexCmd = &cobra.Command{
	Use:   "index <input.json>",
	Short: "Add the components in a description file to the library",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		inputs, err := readInputs(args[0])
		if err != nil {
			return err
		}
		return withLibrary(cmd, func(ctx context.Context, a *app) error {
			indexed, failures, err := a.indexer.IndexInputs(ctx, inputs)
			if err != nil {
				return err
			}
			for _, ix := range indexed {
				if ix.Created {
					printSuccess("Indexed %s", ix.ID)
				} else {
					printStatus(ix.ID, "unchanged")
				}
			}
			for _, f := range failures {
				printError("%s: %s", f.ComponentID, f.Error)
			}
			if len(failures) > 0 {
				return fmt.Errorf("%d of %d components could not be indexed", len(failures), len(inputs))
			}
			return nil
		})
	},
}

var libraryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List library components",
	RunE: func(cmd *cobra.Command, args []string) error {
		typ, _ := cmd.Flags().GetString("type")
		limit, _ := cmd.Flags().GetInt("limit")
		return withLibrary(cmd, func(ctx context.Context, a *app) error {
			comps, err := a.store.ListComponents(ctx, storage.ListFilter{Type: typ, Limit: limit})
			if err != nil {
				return err
			}
			if len(comps) == 0 {
				printStatus("Library", "empty")
				return nil
			}
			writeComponentTable(cmd.OutOrStdout(), comps)
			return nil
		})
	},
}

func writeComponentTable(w io.Writer, comps []storage.Component) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTYPE\tCREATED")
	for _, c := range comps {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.ID, c.Name, c.ComponentType, c.CreatedAt.Format("2006-01-02 15:04"))
	}
	tw.Flush()
}

var libraryShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one library component as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLibrary(cmd, func(ctx context.Context, a *app) error {
			c, err := a.store.GetComponent(ctx, args[0])
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("component %s not found", args[0])
			}
			if err != nil {
				return err
			}
			embs, err := a.store.GetEmbeddings(ctx, c.ID)
			if err != nil {
				return err
			}
			kinds := make(map[string]any, len(embs))
			for k, e := range embs {
				kinds[string(k)] = map[string]any{"dimensions": e.Dimensions, "model": e.ModelName}
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"id":           c.ID,
				"base_id":      c.BaseID,
				"version":      c.Version,
				"name":         c.Name,
				"type":         c.ComponentType,
				"source_path":  c.SourcePath,
				"content_hash": c.ContentHash,
				"created_at":   c.CreatedAt,
				"metadata":     c.Metadata,
				"embeddings":   kinds,
			})
		})
	},
}

var libraryRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a component version and its embeddings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLibrary(cmd, func(ctx context.Context, a *app) error {
			err := a.store.DeleteComponent(ctx, args[0])
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("component %s not found", args[0])
			}
			if err != nil {
				return err
			}
			printSuccess("Removed %s", args[0])
			return nil
		})
	},
}

var librarySearchCmd = &cobra.Command{
	Use:   "search <input.json>",
	Short: "Report the closest library matches for each component in a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		inputs, err := readInputs(args[0])
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")
		return withLibrary(cmd, func(ctx context.Context, a *app) error {
			reports := make(map[string]matching.Report, len(inputs))
			var failed int
			for _, in := range inputs {
				rep, err := a.indexer.Search(ctx, a.scorer, in, limit)
				if err != nil {
					printError("%s: %v", in.ID, err)
					failed++
					continue
				}
				reports[in.ID] = rep
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(reports); err != nil {
					return err
				}
			} else {
				writeReports(cmd.OutOrStdout(), reports)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d components could not be matched", failed, len(inputs))
			}
			return nil
		})
	},
}

func writeReports(w io.Writer, reports map[string]matching.Report) {
	ids := make([]string, 0, len(reports))
	for id := range reports {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "QUERY\tCANDIDATE\tSEMANTIC\tVISUAL\tFINAL\tTIER")
	for _, id := range ids {
		rep := reports[id]
		if len(rep.Results) == 0 {
			fmt.Fprintf(tw, "%s\t-\t\t\t\t%s\n", id, matching.TierNone)
			continue
		}
		for _, r := range rep.Results {
			fmt.Fprintf(tw, "%s\t%s\t%.3f\t%.3f\t%.3f\t%s\n", id, r.ComponentID, r.SemanticScore, r.VisualScore, r.FinalScore, r.Tier)
		}
	}
	tw.Flush()
}

func init() {
	libraryListCmd.Flags().String("type", "", "only components with this classification tag")
	libraryListCmd.Flags().Int("limit", 0, "maximum number of components")
	librarySearchCmd.Flags().Int("limit", 5, "candidates per component")
	librarySearchCmd.Flags().Bool("json", false, "print match reports as JSON")

	libraryCmd.AddCommand(libraryIndexCmd, libraryListCmd, libraryShowCmd, libraryRemoveCmd, librarySearchCmd)
}
