package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jsherman999/fixihub/internal/exporter"
)

func exportCmd(cfgPath *string) *cobra.Command {
	var format string
	var outPath string
	var limit int

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the counter event log and timeline notes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			st, closeFn, err := openPostgres(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer closeFn()

			var b []byte
			switch format {
			case "json":
				b, _, err = exporter.ExportJSON(ctx, st, limit)
			case "csv":
				b, _, err = exporter.ExportCSV(ctx, st, limit)
			default:
				return fmt.Errorf("unknown format %q (use json|csv)", format)
			}
			if err != nil {
				return err
			}

			if outPath == "" || outPath == "-" {
				_, _ = os.Stdout.Write(b)
				return nil
			}
			return os.WriteFile(outPath, b, 0644)
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "export format: json|csv")
	cmd.Flags().StringVar(&outPath, "out", "-", "output path (or - for stdout)")
	cmd.Flags().IntVar(&limit, "limit", 10000, "max events and notes")
	return cmd
}
