package cli

import (
	"github.com/spf13/cobra"

	"github.com/loretree/loretree/internal/app"
)

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Rebuild the item index from the knowledge repository",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunSync()
		},
	}

	return cmd
}
