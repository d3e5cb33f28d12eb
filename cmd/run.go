package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <script.star>",
	Short: "Execute a script.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (outErr error) {
		s, err := newSession(cfg, os.Stdout)
		if err != nil {
			return err
		}
		defer func() {
			if err := s.Close(); err != nil && outErr == nil {
				outErr = fmt.Errorf("couldn't close session: %w", err)
			}
		}()

		if _, err := s.interp.ExecFile(cmd.Context(), args[0], nil); err != nil {
			return fmt.Errorf("couldn't run %s: %w", args[0], err)
		}
		return nil
	},
}
