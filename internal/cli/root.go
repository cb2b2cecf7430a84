// Package cli holds the meshcall commands.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/meshcall/internal/ui"
	"github.com/BioHazard786/meshcall/internal/version"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "meshcall",
	Short: "Mesh video calls for up to five people using WebRTC",
	Long: `meshcall joins a named room on a signaling server and exchanges camera, microphone and screen media directly with every other participant.

Up to five people can share a room. The server only relays connection setup messages; media never passes through it unless a TURN relay is configured.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.PrintError(err.Error())
		stop()
		os.Exit(1)
	}
}
