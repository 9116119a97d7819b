package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"quizsync/internal/domain"
)

// NewSyncCmd runs one sync pass and prints the report.
func NewSyncCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Push queued local results to the remote store once",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadStack(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer s.Close()

			report := s.reconciler.Sync(cmd.Context())
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
			if report.Failed > 0 {
				return fmt.Errorf("%d of %d queued results failed to sync", report.Failed, report.Attempted)
			}
			if report.Fetch.Source != domain.SourceCloud && report.Fetch.Err != nil {
				return fmt.Errorf("remote unavailable: %w", report.Fetch.Err)
			}
			return nil
		},
	}
}
