package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/fieldprep/internal/catalog"
	"github.com/kozaktomas/fieldprep/internal/web"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Open the local web UI for the site-verification queue",
	Long: `Review serves a local web page listing every surviving image whose site
assignment needs a manual check: it matched an image of another site
and that partner was already removed as a duplicate. Confirming a
survivor flips its site_verified flag in the catalog.`,
	RunE: runReview,
}

func init() {
	rootCmd.AddCommand(reviewCmd)

	reviewCmd.Flags().StringP("output", "o", "", "Processed output folder (required)")
	reviewCmd.Flags().Int("port", 8080, "Port to listen on")
	reviewCmd.MarkFlagRequired("output")
}

func runReview(cmd *cobra.Command, args []string) error {
	store, err := catalog.Open(mustGetString(cmd, "output"))
	if err != nil {
		return err
	}
	defer store.Close()

	server := web.NewServer(store, mustGetInt(cmd, "port"))

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-stop:
		fmt.Println()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}
