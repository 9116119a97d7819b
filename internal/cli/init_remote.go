package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewInitRemoteCmd creates the remote bin and caches its id locally.
func NewInitRemoteCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "init-remote",
		Short: "Create the remote result document if none is known",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadStack(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer s.Close()

			binID, err := s.reconciler.EnsureRemote(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), binID)
			return nil
		},
	}
}
