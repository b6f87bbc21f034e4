package risk

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/knhealth/knscreen/pkg/flow"
)

// Assessment is the immutable outcome of one completed screening run.
type Assessment struct {
	Zone         Zone
	PriorityCode string
	CreatedAt    time.Time
}

// PriorityCode builds the triage reference printed on the result screen:
// KN-{ZONE}-{DDMMYY}-{RRR}. The three-digit suffix is drawn uniformly from
// [100, 999]; same-day collisions are possible and acceptable. The code is
// for humans at the clinic desk, never a storage key.
func PriorityCode(zone Zone, now time.Time, rng *rand.Rand) string {
	suffix := 100 + rng.Intn(900)
	return fmt.Sprintf("KN-%s-%s-%03d", zone, now.Format("020106"), suffix)
}

// NewAssessment classifies answers and issues the priority code in one step.
func NewAssessment(answers flow.AnswerSet, now time.Time, rng *rand.Rand) Assessment {
	zone := Classify(answers)
	return Assessment{
		Zone:         zone,
		PriorityCode: PriorityCode(zone, now, rng),
		CreatedAt:    now,
	}
}
