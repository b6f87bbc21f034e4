// Package mailer builds the daily zone digest from the store aggregates
// and sends it over SMTP. The pack carries no SMTP library, so net/smtp
// is used directly.
package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/knhealth/knscreen/pkg/store"
)

// Config is read from KNSCREEN_SMTP_* environment variables by cmd.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// Mailer sends rendered digests.
type Mailer struct {
	cfg Config
	log *zap.Logger
	// send is swapped in tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// New builds a mailer. Host empty means sending is disabled (digests can
// still be rendered locally).
func New(cfg Config, logger *zap.Logger) *Mailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mailer{cfg: cfg, log: logger, send: smtp.SendMail}
}

// Enabled reports whether SMTP delivery is configured.
func (m *Mailer) Enabled() bool { return m.cfg.Host != "" && len(m.cfg.To) > 0 }

// RenderDigest formats the per-location zone counts for one reporting day.
func RenderDigest(day time.Time, counts []store.ZoneCount) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Kidney screening digest for %s\n\n", day.Format("02 Jan 2006"))
	if len(counts) == 0 {
		b.WriteString("No screenings recorded.\n")
		return b.String()
	}

	perLocation := map[string]map[string]int{}
	for _, c := range counts {
		if perLocation[c.LocationCode] == nil {
			perLocation[c.LocationCode] = map[string]int{}
		}
		perLocation[c.LocationCode][c.Zone] = c.Count
	}

	locations := make([]string, 0, len(perLocation))
	for loc := range perLocation {
		locations = append(locations, loc)
	}
	sort.Strings(locations)

	total := 0
	for _, loc := range locations {
		zones := perLocation[loc]
		red, amber, green := zones["RED"], zones["AMBER"], zones["GREEN"]
		fmt.Fprintf(&b, "%-12s RED %3d   AMBER %3d   GREEN %3d\n", loc, red, amber, green)
		total += red + amber + green
	}
	fmt.Fprintf(&b, "\nTotal screenings: %d\n", total)
	return b.String()
}

// SendDigest emails a rendered digest.
func (m *Mailer) SendDigest(subject, body string) error {
	if !m.Enabled() {
		return fmt.Errorf("mailer: SMTP not configured")
	}
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	msg := strings.Join([]string{
		"From: " + m.cfg.From,
		"To: " + strings.Join(m.cfg.To, ", "),
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
		"",
		body,
	}, "\r\n")

	if err := m.send(addr, auth, m.cfg.From, m.cfg.To, []byte(msg)); err != nil {
		m.log.Warn("digest send failed", zap.Error(err))
		return fmt.Errorf("mailer: send: %w", err)
	}
	m.log.Info("digest sent", zap.Strings("to", m.cfg.To))
	return nil
}

// RunDaily invokes fn immediately and then once every 24h until the
// context is cancelled. Errors from fn are logged, never fatal.
func (m *Mailer) RunDaily(ctx context.Context, fn func() error) {
	run := func() {
		if err := fn(); err != nil {
			m.log.Warn("daily digest run failed", zap.Error(err))
		}
	}
	run()
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			run()
		}
	}
}
