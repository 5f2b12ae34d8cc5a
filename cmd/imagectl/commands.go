package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/tendant/simple-image/pkg/simpleimage"
	"github.com/tendant/simple-image/pkg/simpleimage/admin"
)

func parseIDArg(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid image id: %q", arg)
	}
	return id, nil
}

func newIngestCommand(a *app) *cobra.Command {
	var name string
	var ext string

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Compress and store an image file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			if name == "" {
				name = filepath.Base(args[0])
			}

			asset, err := a.comps.Service.Ingest(cmd.Context(), simpleimage.IngestRequest{
				Name:      name,
				Data:      data,
				Extension: ext,
			})
			if err != nil {
				return fmt.Errorf("ingest failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Image ID: %d\n", asset.ID)
			fmt.Fprintf(cmd.OutOrStdout(), "Blob key: %s\n", asset.Key)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "name to record (default: the file's base name)")
	cmd.Flags().StringVar(&ext, "ext", "", "output format extension, e.g. .png")

	return cmd
}

func newListCommand(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored images in creation order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			assets, err := a.comps.Service.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("list failed: %w", err)
			}

			if asJSON {
				if assets == nil {
					assets = []*simpleimage.Asset{}
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(assets)
			}

			if len(assets) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No images found")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tKEY\tCREATED")
			for _, asset := range assets {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", asset.ID, asset.Name, asset.Key, asset.CreatedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")

	return cmd
}

func newFetchCommand(a *app) *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "fetch <id>",
		Short: "Write the stored bytes of an image to a file or stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseIDArg(args[0])
			if err != nil {
				return err
			}

			img, err := a.comps.Service.Fetch(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("fetch failed: %w", err)
			}

			if outputPath == "" || outputPath == "-" {
				_, err := cmd.OutOrStdout().Write(img.Data)
				return err
			}
			if err := os.WriteFile(outputPath, img.Data, 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", outputPath, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d bytes (%s) to %s\n", len(img.Data), img.ContentType, outputPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "output file (default: stdout)")

	return cmd
}

func newRemoveCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>...",
		Short: "Delete images and their stored bytes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, arg := range args {
				id, err := parseIDArg(arg)
				if err != nil {
					return err
				}
				if err := a.comps.Service.Remove(cmd.Context(), id); err != nil {
					return fmt.Errorf("remove %d failed: %w", id, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed image %d\n", id)
			}
			return nil
		},
	}
}

func newAuditCommand(a *app) *cobra.Command {
	var concurrency int
	var prune bool

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Report records whose stored bytes are missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			auditor := admin.NewAuditor(a.comps.Repository, a.comps.BlobStore,
				admin.WithConcurrency(concurrency),
				admin.WithLogger(a.logger(cmd.ErrOrStderr())),
			)

			dangling, err := auditor.Dangling(cmd.Context())
			if err != nil {
				return fmt.Errorf("audit failed: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(dangling) == 0 {
				fmt.Fprintln(out, "All records have stored bytes")
				return nil
			}
			for _, asset := range dangling {
				fmt.Fprintf(out, "dangling\t%d\t%s\t%s\n", asset.ID, asset.Name, asset.Key)
			}
			if !prune {
				return nil
			}
			for _, asset := range dangling {
				if err := a.comps.Service.Remove(cmd.Context(), asset.ID); err != nil {
					return fmt.Errorf("prune %d failed: %w", asset.ID, err)
				}
			}
			fmt.Fprintf(out, "Pruned %d record(s)\n", len(dangling))
			return nil
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", admin.DefaultConcurrency, "parallel blob checks")
	cmd.Flags().BoolVar(&prune, "prune", false, "delete dangling records")

	return cmd
}
