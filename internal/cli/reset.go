package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/lowc1012/authguard/internal/flagstore"
	"github.com/lowc1012/authguard/internal/recovery"
	"github.com/spf13/cobra"
)

func newResetCmd() *cobra.Command {
	var (
		sessionID string
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear a session's persisted auth flags",
		Long: `Clear every persisted auth flag of a session.

The in-memory guard lives in the server process; use POST /api/v1/auth/reset
to reset it together with the flags.`,
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
			if dryRun {
				return writeResetResult(cmd.OutOrStdout(), sessionID, flags, true, false)
			}

			ok := recovery.New(sessionID, nil, store).ResetAllAuthState(cmd.Context())
			if !ok {
				return errors.New("flag store unavailable")
			}
			return writeResetResult(cmd.OutOrStdout(), sessionID, flags, false, true)
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID to reset")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be cleared")
	return cmd
}

func writeResetResult(w io.Writer, sessionID string, flags map[flagstore.Flag]string, dryRun, reset bool) error {
	names := flagNames(flags)
	result := map[string]any{
		"session": sessionID,
		"flags":   names,
		"dry_run": dryRun,
		"reset":   reset,
	}
	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(payload))
	return err
}

func flagNames(flags map[flagstore.Flag]string) []string {
	names := make([]string, 0, len(flags))
	for f := range flags {
		names = append(names, string(f))
	}
	sort.Strings(names)
	return names
}
