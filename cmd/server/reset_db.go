package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"docqa/internal/bootstrap"
	"docqa/internal/config"
	"docqa/internal/platform/database"
	"docqa/internal/repository"
)

var resetConfirmed bool

var resetDBCmd = &cobra.Command{
	Use:   "reset-db",
	Short: "Drop and recreate the documents table",
	Long: `Drop and recreate the documents table. Stored files are left in place.

Examples:
  docqa reset-db --yes`,
	SilenceUsage: true,
	RunE:         runResetDB,
}

func init() {
	resetDBCmd.Flags().BoolVarP(&resetConfirmed, "yes", "y", false, "Confirm that all document metadata will be deleted")
	rootCmd.AddCommand(resetDBCmd)
}

func runResetDB(cmd *cobra.Command, _ []string) error {
	if !resetConfirmed {
		return errors.New("refusing to reset without --yes")
	}

	cfg, err := config.LoadDatabase()
	if err != nil {
		return fmt.Errorf("load config failed: %w", err)
	}
	db, err := bootstrap.OpenDatabase(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer database.Close(db)

	if err := repository.NewDocumentRepository(db).Reset(); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Database reset successfully.")
	return nil
}
