package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/knhealth/knscreen/pkg/logging"
	"github.com/knhealth/knscreen/pkg/mailer"
	"github.com/knhealth/knscreen/pkg/store"
)

var (
	digestSend  bool
	digestWatch bool
)

var digestCmd = &cobra.Command{
	Use:   "digest",
	Short: "Render the daily zone summary, optionally emailing it",
	Long: `Aggregates the last 24 hours of screenings per location and zone.
Prints the digest by default; --send emails it via the configured
SMTP account, and --watch keeps running and sends one every day.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logging.New(debug)
		defer log.Sync()

		st, err := store.Open(dbPath, log)
		if err != nil {
			return err
		}
		defer st.Close()

		m := mailer.New(smtpConfigFromEnv(), log)
		runOnce := func() error {
			day := time.Now()
			counts, err := st.ZoneCounts(day.Add(-24 * time.Hour))
			if err != nil {
				return err
			}
			body := mailer.RenderDigest(day, counts)
			if !digestSend && !digestWatch {
				fmt.Print(body)
				return nil
			}
			subject := fmt.Sprintf("Kidney screening digest %s", day.Format("02 Jan 2006"))
			return m.SendDigest(subject, body)
		}

		if !digestWatch {
			return runOnce()
		}
		if !m.Enabled() {
			return fmt.Errorf("digest: --watch needs KNSCREEN_SMTP_HOST and KNSCREEN_SMTP_TO")
		}
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		m.RunDaily(ctx, runOnce)
		return nil
	},
}

func init() {
	digestCmd.Flags().BoolVar(&digestSend, "send", false, "Email the digest instead of printing it")
	digestCmd.Flags().BoolVar(&digestWatch, "watch", false, "Keep running and send a digest every 24h")
	rootCmd.AddCommand(digestCmd)
}
