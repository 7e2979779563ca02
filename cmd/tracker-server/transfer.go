package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ehr/tracker/internal/config"
	"github.com/ehr/tracker/internal/domain/transfer"
	"github.com/ehr/tracker/internal/platform/auth"
	"github.com/ehr/tracker/internal/platform/db"
	"github.com/ehr/tracker/internal/platform/document"
)

const cliUser = "cli"

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write an episode or patient to a JSON file",
	}
	for _, kind := range []string{"episode", "patient"} {
		kind := kind
		sub := &cobra.Command{
			Use:   kind,
			Short: fmt.Sprintf("Export one %s with its subrecords", kind),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, _ := cmd.Flags().GetInt64("id")
				out, _ := cmd.Flags().GetString("out")
				user, _ := cmd.Flags().GetString("user")
				if id <= 0 {
					return fmt.Errorf("--id is required")
				}
				return withApp(cmd.Context(), user, func(ctx context.Context, a *app) error {
					run := a.transfer.ExportEpisode
					if kind == "patient" {
						run = a.transfer.ExportPatient
					}
					exp, err := run(ctx, id, user)
					if err != nil {
						return err
					}
					return writeExport(cmd.OutOrStdout(), out, exp)
				})
			},
		}
		sub.Flags().Int64("id", 0, fmt.Sprintf("%s id", kind))
		sub.Flags().String("out", "", "Output path; defaults to the export filename, - for stdout")
		sub.Flags().String("user", cliUser, "User recorded against the export")
		cmd.AddCommand(sub)
	}
	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load an exported episode or patient",
	}
	for _, kind := range []string{"episode", "patient"} {
		kind := kind
		sub := &cobra.Command{
			Use:   kind,
			Short: fmt.Sprintf("Import one %s document", kind),
			RunE: func(cmd *cobra.Command, args []string) error {
				path, _ := cmd.Flags().GetString("file")
				user, _ := cmd.Flags().GetString("user")
				if path == "" {
					return fmt.Errorf("--file is required")
				}
				doc, err := readDocument(path)
				if err != nil {
					return err
				}
				return withApp(cmd.Context(), user, func(ctx context.Context, a *app) error {
					run := a.transfer.ImportEpisode
					if kind == "patient" {
						run = a.transfer.ImportPatient
					}
					res, err := run(ctx, doc, user)
					if err != nil {
						return err
					}
					printResult(cmd.OutOrStdout(), res)
					return nil
				})
			},
		}
		sub.Flags().String("file", "", "Path to the JSON document")
		sub.Flags().String("user", cliUser, "User recorded as creator of the imported rows")
		cmd.AddCommand(sub)
	}
	return cmd
}

// withApp opens the configured storage and runs fn as user. With postgres a
// schema-scoped connection is pinned to the context, as it is for requests.
func withApp(ctx context.Context, user string, fn func(ctx context.Context, a *app) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a, err := openApp(ctx, cfg, newLogger(cfg.Env))
	if err != nil {
		return err
	}
	defer a.Close()

	if a.pool != nil {
		var release func()
		ctx, release, err = db.AcquireConn(ctx, a.pool, cfg.DBSchema)
		if err != nil {
			return err
		}
		defer release()
	}
	return fn(auth.WithUser(ctx, user, []string{auth.RoleAdmin}), a)
}

func readDocument(path string) (document.Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return document.Decode(f)
}

// writeExport writes to out, to stdout for "-", or to the export's own
// filename when out is empty.
func writeExport(stdout io.Writer, out string, exp *transfer.Export) error {
	if out == "-" {
		return document.Encode(stdout, exp.Document)
	}
	if out == "" {
		out = exp.Filename
	}
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("create %s: %w", out, err)
	}
	if err := document.Encode(f, exp.Document); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", out, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Wrote %s\n", out)
	return nil
}

func printResult(w io.Writer, res *transfer.ImportResult) {
	fmt.Fprintln(w, res.Message())
	fmt.Fprintf(w, "patient %d matched by %s, episodes %v\n", res.PatientID, res.Match, res.EpisodeIDs)
	if len(res.Skipped) > 0 {
		fmt.Fprintf(w, "Not imported: %s\n", strings.Join(res.Skipped, ", "))
	}
	if len(res.Discarded) > 0 {
		fmt.Fprintf(w, "Discarded: %s\n", strings.Join(res.Discarded, ", "))
	}
}
