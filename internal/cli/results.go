package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"quizsync/internal/domain"
)

// NewResultsCmd prints the merged result log.
func NewResultsCmd(configPath *string) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "results",
		Short: "Print the merged result log, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadStack(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer s.Close()

			out := s.reconciler.Load(cmd.Context())
			if out.Err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: showing %s results: %v\n", out.Source, out.Err)
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out.Records)
			}
			return printResults(cmd.OutOrStdout(), out.Records)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print raw JSON records")
	return cmd
}

func printResults(w io.Writer, log domain.ResultLog) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tUSER\tNAME\tROLE\tSCORE\tGRADE\tTIME\tSYNCED")
	for _, r := range log {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\t%t\n",
			r.CreatedAt.Local().Format("2006-01-02 15:04"),
			r.UserID, r.UserName, r.Role, r.Score, r.Grade, r.ElapsedTime, !r.SyncNeeded)
	}
	return tw.Flush()
}
