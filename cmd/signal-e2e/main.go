// Command signal-e2e negotiates a real WebRTC data channel between two local
// peers through a running rendezvous server.
package main

import (
	"os"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var opts probeOptions

var rootCmd = &cobra.Command{
	Use:   "signal-e2e",
	Short: "Pair an emitter and a receiver through the signaling server and open a data channel",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runProbe(cmd.Context(), opts)
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&opts.URL, "url", "ws://localhost:3001/ws", "signaling websocket URL")
	f.StringVar(&opts.PIN, "pin", "1234", "session PIN")
	f.StringSliceVar(&opts.STUN, "stun", nil, "STUN server URLs (host candidates only when empty)")
	f.DurationVar(&opts.Timeout, "timeout", 30*time.Second, "overall deadline")
	f.BoolVar(&opts.Debug, "debug", false, "verbose pion and probe logging")
}

func main() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	if err := rootCmd.Execute(); err != nil {
		pterm.Error.Println(err.Error())
		os.Exit(1)
	}
}
