package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"gallery-viewer/internal/app"
	"gallery-viewer/internal/mediatypes"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	var validate bool

	cmd := &cobra.Command{
		Use:   "scan [paths...]",
		Short: "Reload stored galleries and scan the library folders or the given paths",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), false, func(a *app.App) error {
				results, err := a.Load(cmd.Context(), args)
				for _, r := range results {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %d candidates, %d added, %d revived, %d marked dead, %d failed in %s\n",
						r.Mode, r.Candidates, r.Added, r.Revived, r.MarkedDead, r.Failed, r.Duration.Round(time.Millisecond))
					for _, path := range r.Unreadable {
						fmt.Fprintf(cmd.OutOrStdout(), "  unreadable: %s\n", path)
					}
				}
				if err != nil {
					return err
				}
				if validate {
					s := a.Validate(cmd.Context())
					fmt.Fprintf(cmd.OutOrStdout(), "validate: %d checked, %d touched, %d identity changed, %d failed\n",
						s.Checked, s.Touched, s.IdentityChanged, s.Failed)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&validate, "validate", false, "Check gallery identities after the scan")
	return cmd
}

func newReloadCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Load stored galleries and report what is still on disk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), false, func(a *app.App) error {
				r, err := a.Reload(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d galleries loaded, %d marked dead\n", r.Added, r.MarkedDead)
				return nil
			})
		},
	}
}

func newDedupeCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "dedupe",
		Short: "Remove duplicate galleries, keeping one per group",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), true, func(a *app.App) error {
				out := cmd.OutOrStdout()
				if dryRun {
					groups := a.DuplicateGroups(cmd.Context())
					for i, group := range groups {
						fmt.Fprintf(out, "group %d:\n", i+1)
						for _, s := range group {
							fmt.Fprintf(out, "  [%d] %s\n", s.ID, s.Location)
						}
					}
					fmt.Fprintf(out, "%d duplicate groups\n", len(groups))
					return nil
				}
				report, err := a.Dedupe(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%d groups, %d removed, %d skipped, %d failed\n",
					report.Groups, len(report.Removed), report.Skipped, report.Failed)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List duplicate groups without removing anything")
	return cmd
}

func newMatchCommand(ctx *commandContext) *cobra.Command {
	var ids []int64
	var force bool

	cmd := &cobra.Command{
		Use:   "match",
		Short: "Search catalog metadata for galleries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), true, func(a *app.App) error {
				report, err := a.Match(cmd.Context(), ids, force)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d searched, %d matched, %d unresolved, %d failed\n",
					report.Searched, report.Matched, report.Unresolved, report.Failed)
				return nil
			})
		},
	}
	cmd.Flags().Int64SliceVar(&ids, "id", nil, "Gallery ids to search (default all)")
	cmd.Flags().BoolVar(&force, "force", false, "Search even galleries that already have catalog metadata")
	return cmd
}

func newThumbnailsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "thumbnails",
		Short: "Generate missing thumbnails and prune orphaned ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withApp(cmd.Context(), true, func(a *app.App) error {
				r := a.Thumbnails(cmd.Context())
				fmt.Fprintf(cmd.OutOrStdout(), "%d valid, %d generated, %d failed, %d pruned\n",
					r.Valid, r.Generated, r.Failed, r.Pruned)
				return nil
			})
		},
	}
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var sortField, order string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the galleries of the library",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if order != string(mediatypes.SortAsc) && order != string(mediatypes.SortDesc) {
				return fmt.Errorf("order must be asc or desc, got %q", order)
			}
			return ctx.withApp(cmd.Context(), true, func(a *app.App) error {
				list := a.List(mediatypes.SortField(sortField), mediatypes.SortOrder(order))
				rows := make([][]string, 0, len(list))
				for _, s := range list {
					rating := "-"
					if s.Rating > 0 {
						rating = strconv.FormatFloat(s.Rating, 'f', 1, 64)
					}
					rows = append(rows, []string{
						strconv.FormatInt(s.ID, 10),
						s.Title,
						s.Kind,
						s.Category,
						rating,
						strconv.Itoa(s.ReadCount),
						humanize.Time(unixTime(s.TimeAdded)),
					})
				}
				headers := []string{"ID", "Title", "Kind", "Category", "Rating", "Reads", "Added"}
				aligns := []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(headers, rows, aligns))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&sortField, "sort", string(mediatypes.SortByName), "Sort field")
	cmd.Flags().StringVar(&order, "order", string(mediatypes.SortAsc), "Sort order (asc or desc)")
	return cmd
}

func newMirrorCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mirror",
		Short: "Manage the local catalog mirror",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "import <file|->",
		Short: "Import catalog records from a JSON array",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			return ctx.withApp(cmd.Context(), false, func(a *app.App) error {
				n, err := a.ImportMirror(cmd.Context(), r)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s records imported\n", humanize.Comma(int64(n)))
				return nil
			})
		},
	})
	return cmd
}
