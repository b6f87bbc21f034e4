package cli

import (
	"go.uber.org/zap"

	"github.com/knhealth/knscreen/pkg/crm"
	"github.com/knhealth/knscreen/pkg/session"
	"github.com/knhealth/knscreen/pkg/store"
)

// Sinks executes the commands the state machine emits after a completed
// run. Failures are collapsed into a single warning string; the computed
// result is already final when Run is called.
type Sinks struct {
	Store *store.Store
	CRM   *crm.Client
	Log   *zap.Logger
}

// Run executes the given commands and returns a warning for the result
// screen, or "" when everything succeeded.
func (s Sinks) Run(cmds []session.Command) string {
	log := s.Log
	if log == nil {
		log = zap.NewNop()
	}

	warning := ""
	for _, cmd := range cmds {
		switch c := cmd.(type) {
		case session.PersistSubmission:
			if s.Store == nil {
				warning = "result not saved (no database configured)"
				continue
			}
			sub := c.Submission
			user := store.User{
				Name:     sub.Identity.Name,
				Phone:    sub.Identity.Phone,
				Age:      sub.Identity.Age,
				Language: string(sub.Language),
			}
			if err := s.Store.SaveUser(&user); err != nil {
				log.Warn("persist user failed", zap.Error(err))
				warning = "result could not be saved"
				continue
			}
			err := s.Store.SaveAssessment(&store.Assessment{
				UserID:       user.ID,
				QRNo:         sub.QRNo,
				LocationCode: sub.LocationCode,
				Unit:         sub.Unit,
				Zone:         sub.Zone.String(),
				PriorityCode: sub.PriorityCode,
				Mode:         string(sub.Mode),
				Language:     string(sub.Language),
				Answers:      sub.Answers,
				CreatedAt:    sub.CreatedAt,
			})
			if err != nil {
				log.Warn("persist assessment failed", zap.Error(err))
				warning = "result could not be saved"
			}
		case session.ForwardLead:
			if s.CRM == nil {
				continue
			}
			if err := s.CRM.Forward(c.Lead); err != nil {
				// The lead matters less than the saved record; keep any
				// persistence warning over this one.
				if warning == "" {
					warning = "follow-up request could not be forwarded"
				}
			}
		}
	}
	return warning
}
