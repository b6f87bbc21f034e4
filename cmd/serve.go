package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/knhealth/knscreen/pkg/crm"
	"github.com/knhealth/knscreen/pkg/flow"
	"github.com/knhealth/knscreen/pkg/logging"
	"github.com/knhealth/knscreen/pkg/qrconfig"
	"github.com/knhealth/knscreen/pkg/server"
	"github.com/knhealth/knscreen/pkg/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the screening HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logging.New(debug)
		defer log.Sync()

		configDir := qrconfig.FindConfigDir()
		questions, err := flow.LoadQuestionSetFromDir(configDir)
		if err != nil {
			return err
		}
		registry, err := qrconfig.Load(configDir)
		if err != nil {
			return err
		}

		st, err := store.Open(dbPath, log)
		if err != nil {
			log.Warn("store unavailable, submissions will not be saved", zap.Error(err))
			st = nil
		} else {
			defer st.Close()
		}

		crmClient := crm.New(os.Getenv("KNSCREEN_CRM_WEBHOOK"), log)
		return server.New(questions, registry, st, crmClient, log).Start(servePort)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "HTTP port to listen on")
	rootCmd.AddCommand(serveCmd)
}
