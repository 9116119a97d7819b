package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"quizsync/internal/domain"
)

// NewUserCmd manages the identity that quiz sessions fall back to when the
// client does not send one.
func NewUserCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Show, set or clear the signed-in user",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadStack(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer s.Close()

			who, err := s.identities.Current(cmd.Context())
			if err != nil {
				return err
			}
			if who == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "guest")
				return nil
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(who)
		},
	})

	var who domain.Identity
	var role string
	set := &cobra.Command{
		Use:   "set",
		Short: "Store the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			who.Role = domain.Role(role)
			switch who.Role {
			case domain.RoleTeacher, domain.RoleStudent, domain.RoleGuest:
			default:
				return fmt.Errorf("unknown role %q", role)
			}
			if who.UserID == "" {
				return fmt.Errorf("--id is required")
			}
			if who.UserName == "" {
				who.UserName = who.UserID
			}

			s, err := loadStack(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer s.Close()
			if s.redis == nil {
				s.log.Warn("redis not configured, the user is forgotten when this command exits")
			}
			return s.identities.Set(cmd.Context(), who)
		},
	}
	set.Flags().StringVar(&who.UserID, "id", "", "user id")
	set.Flags().StringVar(&who.UserName, "name", "", "display name (defaults to the id)")
	set.Flags().StringVar(&role, "role", string(domain.RoleStudent), "teacher, student or guest")
	cmd.AddCommand(set)

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Sign out; sessions without an identity run as guest",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadStack(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer s.Close()
			return s.identities.Clear(cmd.Context())
		},
	})
	return cmd
}
