package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/knhealth/knscreen/pkg/cli"
	"github.com/knhealth/knscreen/pkg/crm"
	"github.com/knhealth/knscreen/pkg/flow"
	"github.com/knhealth/knscreen/pkg/logging"
	"github.com/knhealth/knscreen/pkg/mailer"
	"github.com/knhealth/knscreen/pkg/qrconfig"
	"github.com/knhealth/knscreen/pkg/report"
	"github.com/knhealth/knscreen/pkg/session"
	"github.com/knhealth/knscreen/pkg/store"
)

var (
	// Global flags
	qrNo     string
	dbPath   string
	langFlag string
	debug    bool
)

var rootCmd = &cobra.Command{
	Use:   "knscreen",
	Short: "QR-triggered kidney health screening",
	Long: `Runs the kidney health self-assessment started by scanning a QR
code at a screening site. Walks the question flow, classifies the
answers into a RED/AMBER/GREEN zone, and issues a priority code
for the clinic desk.`,
}

var screenCmd = &cobra.Command{
	Use:   "screen",
	Short: "Run an interactive screening session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWizard()
	},
}

var questionsCmd = &cobra.Command{
	Use:   "questions",
	Short: "Print the active screening question set",
	RunE: func(cmd *cobra.Command, args []string) error {
		questions, err := flow.LoadQuestionSetFromDir(qrconfig.FindConfigDir())
		if err != nil {
			return err
		}
		lang := flow.Language(langFlag)
		for i, q := range questions {
			if q.Derived {
				fmt.Printf("%2d. %s (derived)\n", i, q.ID)
				continue
			}
			fmt.Printf("%2d. %s\n", i, q.Label.Text(lang))
			if q.DependsOn != "" {
				fmt.Printf("    asked only when %s is %s\n", q.DependsOn, strings.Join(q.RequiredValues, " or "))
			}
			for _, o := range q.Options {
				fmt.Printf("    - %s\n", o.Label.Text(lang))
			}
		}
		return nil
	},
}

var locationsCmd = &cobra.Command{
	Use:   "locations",
	Short: "List registered QR codes and their screening sites",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := qrconfig.Load(qrconfig.FindConfigDir())
		if err != nil {
			return err
		}
		fmt.Printf("  %-14s %-10s %-6s %-4s %s\n", "QR", "LOCATION", "UNIT", "LANG", "NAME")
		for _, loc := range registry.List() {
			fmt.Printf("  %-14s %-10s %-6s %-4s %s\n",
				loc.QRNo, loc.LocationCode, loc.Unit, loc.Language, loc.Name)
		}
		return nil
	},
}

var reportCmd = &cobra.Command{
	Use:   "report [token]",
	Short: "Decode a screening report token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rep, err := report.Decode(args[0])
		if err != nil {
			return err
		}
		questions, err := flow.LoadQuestionSetFromDir(qrconfig.FindConfigDir())
		if err != nil {
			return err
		}

		lang := rep.Language
		if langFlag != "" {
			lang = flow.Language(langFlag)
		}
		fmt.Printf("Priority code: %s\n", rep.Code)
		fmt.Printf("Zone:          %s\n", rep.Zone)
		fmt.Printf("Issued:        %s\n\n", rep.Time().Format("02 Jan 2006 15:04 MST"))
		answers := rep.AnswerSet(questions)
		for _, q := range questions {
			v, ok := answers[q.ID]
			if !ok {
				continue
			}
			label := v
			for _, o := range q.Options {
				if o.Value == v {
					label = o.Label.Text(lang)
					break
				}
			}
			fmt.Printf("  %s\n    %s\n", q.Label.Text(lang), label)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&qrNo, "qr", env("KNSCREEN_QR", "KN-QR-DEMO"), "QR number identifying the screening site")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", env("KNSCREEN_DB", "data/knscreen.db"), "SQLite database path")
	rootCmd.PersistentFlags().StringVar(&langFlag, "lang", "en", "Display language (en, ta)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Verbose logging")

	rootCmd.AddCommand(screenCmd)
	rootCmd.AddCommand(questionsCmd)
	rootCmd.AddCommand(locationsCmd)
	rootCmd.AddCommand(reportCmd)
}

func Execute() error {
	if len(os.Args) == 1 {
		return runWizard()
	}
	return rootCmd.Execute()
}

func runWizard() error {
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
	loc, err := registry.Resolve(qrNo)
	if err != nil {
		return err
	}

	// A broken database must not block a walk-in screening; the wizard
	// runs and the result screen carries a warning instead.
	st, err := store.Open(dbPath, log)
	if err != nil {
		log.Warn("store unavailable, results will not be saved", zap.Error(err))
		st = nil
	} else {
		defer st.Close()
	}

	machine := session.NewMachine(questions, session.ScreenContext{
		QRNo:         loc.QRNo,
		LocationCode: loc.LocationCode,
		Unit:         loc.Unit,
	})
	sinks := cli.Sinks{
		Store: st,
		CRM:   crm.New(os.Getenv("KNSCREEN_CRM_WEBHOOK"), log),
		Log:   log,
	}
	return cli.RunWizard(machine, loc, sinks)
}

// env returns the variable's value or a fallback. godotenv has already
// merged .env into the process environment by the time flags are parsed.
func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func smtpConfigFromEnv() mailer.Config {
	port := 587
	if v := os.Getenv("KNSCREEN_SMTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			port = p
		}
	}
	var to []string
	for _, addr := range strings.Split(os.Getenv("KNSCREEN_SMTP_TO"), ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			to = append(to, addr)
		}
	}
	return mailer.Config{
		Host:     os.Getenv("KNSCREEN_SMTP_HOST"),
		Port:     port,
		Username: os.Getenv("KNSCREEN_SMTP_USERNAME"),
		Password: os.Getenv("KNSCREEN_SMTP_PASSWORD"),
		From:     env("KNSCREEN_SMTP_FROM", "screening@knhealth.org"),
		To:       to,
	}
}
