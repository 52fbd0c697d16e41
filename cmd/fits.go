package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/fitk/internal/model"
	"github.com/sells-group/fitk/internal/store"
)

var fitsCmd = &cobra.Command{
	Use:   "fits",
	Short: "Inspect recorded fits",
}

// -- fits list --

var fitsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded fits",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		subject, _ := cmd.Flags().GetString("subject")
		limit, _ := cmd.Flags().GetInt("limit")
		format, _ := cmd.Flags().GetString("format")

		filter := store.FitFilter{Limit: limit}
		if subject != "" {
			filter.Subject = model.SubjectKey(subject)
		}

		fits, err := st.ListFits(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "fits list")
		}

		if format == "table" {
			if len(fits) == 0 {
				fmt.Fprintln(os.Stderr, "No fits found.")
				return nil
			}
			formatFitsList(cmd.OutOrStdout(), fits)
			return nil
		}
		return encodeFits(cmd.OutOrStdout(), format, fits)
	},
}

// -- fits show --

var fitsShowCmd = &cobra.Command{
	Use:   "show <fit-id|subject>",
	Short: "Show a fit by ID, or the latest fit for a subject",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		fit, err := st.GetFit(ctx, args[0])
		if eris.Is(err, store.ErrFitNotFound) {
			fit, err = st.GetLatestFit(ctx, model.SubjectKey(args[0]))
		}
		if err != nil {
			return eris.Wrap(err, "fits show")
		}

		format, _ := cmd.Flags().GetString("format")
		return encodeFits(cmd.OutOrStdout(), format, fit)
	},
}

func init() {
	fitsListCmd.Flags().String("subject", "", "filter by subject")
	fitsListCmd.Flags().Int("limit", 50, "max number of fits to display")
	fitsListCmd.Flags().String("format", "table", "output format: table, json, yaml")

	fitsShowCmd.Flags().String("format", "json", "output format: json, yaml")

	fitsCmd.AddCommand(fitsListCmd)
	fitsCmd.AddCommand(fitsShowCmd)
	rootCmd.AddCommand(fitsCmd)
}

// encodeFits writes v as indented JSON or YAML.
func encodeFits(out io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return eris.Wrap(err, "encode yaml")
		}
		return enc.Close()
	default:
		return eris.Errorf("unsupported output format: %s", format)
	}
}

// formatFitsList writes a tabular list of fits to w.
func formatFitsList(out io.Writer, fits []model.FitResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSUBJECT\tK\tM\tLL\tTRIALS\tFEASIBLE\tSTATUS\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t-------\t-\t-\t--\t------\t--------\t------\t-------")

	for _, f := range fits {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.5f\t%.3f\t%.5f\t%d\t%d/%d\t%s\t%s\n",
			truncateID(f.ID),
			f.Subject,
			f.Params.K,
			f.Params.M,
			f.LogLikelihood,
			f.Trials,
			f.Feasible,
			f.Restarts,
			f.Diagnostics.Status,
			f.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
