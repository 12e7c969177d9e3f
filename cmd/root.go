package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marymwortman-lang/PureConnect/internal/ui"
	"github.com/marymwortman-lang/PureConnect/internal/version"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pureconnect",
	Short: "Two-party video calls over WebRTC with a tiny signaling relay",
	Long: `PureConnect places one-to-one WebRTC calls. Two people join the same room on a
signaling relay, which introduces them and passes offers, answers and ICE
candidates between them. Audio and video then flow peer to peer, and the relay
also carries a simple text chat for the room.`,
	Version: version.Version,
}

// Execute runs the root command. Interrupts cancel the command's context so
// calls hang up and the relay drains before the process exits.
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
