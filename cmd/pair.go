package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/omegagate/internal/channels/whatsapp"
	"github.com/nextlevelbuilder/omegagate/internal/config"
)

// pairCmd connects to the configured WhatsApp bridge standalone and prints
// the next QR pairing payload it publishes, for a human to scan. It does
// not start the full gateway — only the one channel needed to pair (§6.4).
func pairCmd() *cobra.Command {
	var timeoutSec int
	cmd := &cobra.Command{
		Use:   "pair",
		Short: "Pair the WhatsApp channel by printing its next QR payload",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPair(time.Duration(timeoutSec) * time.Second)
		},
	}
	cmd.Flags().IntVar(&timeoutSec, "timeout", 60, "seconds to wait for a QR payload")
	return cmd
}

func runPair(timeout time.Duration) error {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return err
	}
	cc, ok := cfg.Channels["whatsapp"]
	if !ok || !cc.Enabled {
		return fmt.Errorf("pair: channels.whatsapp is not enabled in config")
	}

	ch, err := whatsapp.New(whatsapp.Config{BridgeURL: cc.Token, SessionPath: ""})
	if err != nil {
		return err
	}
	qr := whatsapp.NewQRStream()
	ch.SetQRStream(qr)

	if latest, ok := qr.Latest(); ok {
		fmt.Println(latest)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if _, err := ch.Start(ctx); err != nil {
		return fmt.Errorf("pair: connect to bridge: %w", err)
	}
	defer ch.Stop(context.Background())

	sub := qr.Subscribe()
	fmt.Println("waiting for QR payload from bridge...")
	select {
	case payload := <-sub:
		fmt.Println(payload)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pair: timed out waiting for a QR payload")
	}
}
