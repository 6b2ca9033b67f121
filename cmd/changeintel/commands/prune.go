package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Runbook-Agent/change-intelligence/internal/models"
	"github.com/Runbook-Agent/change-intelligence/internal/store"
)

var (
	pruneDatabasePath string
	pruneDays         int
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete change events older than a retention window",
	Long: `Delete change events whose timestamp is older than the given number of
days. Runs against the store file directly, so stop the server first or
accept that the two processes share the database.`,
	Run: runPrune,
}

func init() {
	pruneCmd.Flags().StringVar(&pruneDatabasePath, "database", "changeintel.db", "Path to the SQLite event store file")
	pruneCmd.Flags().IntVar(&pruneDays, "older-than-days", 90, "Delete events older than this many days")
}

func runPrune(cmd *cobra.Command, args []string) {
	if pruneDays <= 0 {
		HandleError(models.NewValidationError("retention days must be positive, got %d", pruneDays), "Invalid arguments")
	}

	if err := setupLog(logLevelFlags); err != nil {
		HandleError(err, "Failed to setup logging")
	}

	eventStore, err := store.Open(pruneDatabasePath)
	if err != nil {
		HandleError(err, "Failed to open event store")
	}
	defer eventStore.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	deleted, err := eventStore.PruneOlderThan(ctx, pruneDays)
	if err != nil {
		HandleError(err, "Prune failed")
	}
	fmt.Printf("Deleted %d events older than %d days from %s\n", deleted, pruneDays, pruneDatabasePath)
}
