package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := initEnv(cmd.Context(), "cli")
		if err != nil {
			return err
		}
		defer e.Close()

		zap.L().Info("schema up to date", zap.String("driver", cfg.Store.Driver))
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Schema up to date (%s).\n", cfg.Store.Driver)
		return err
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
