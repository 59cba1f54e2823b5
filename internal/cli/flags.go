package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newFlagsCmd() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "flags",
		Short: "Show a session's persisted auth flags",
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID = strings.TrimSpace(sessionID)
			if sessionID == "" {
				return errors.New("--session is required")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, _, closeStore := openStore(cfg)
			defer closeStore() // nolint:errcheck // best-effort cleanup

			flags, err := store.Get(cmd.Context(), sessionID)
			if err != nil {
				return fmt.Errorf("read flags: %w", err)
			}

			out := make(map[string]string, len(flags))
			for f, v := range flags {
				out[string(f)] = v
			}
			payload, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(payload))
			return err
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID to inspect")
	return cmd
}
