// Package risk classifies a completed answer set into a triage zone and
// issues the human-readable priority code printed on the result screen.
// Everything in this package is a pure function over its inputs.
package risk

import "fmt"

// Zone is the screening outcome: RED needs urgent review, AMBER a routine
// check, GREEN none.
type Zone string

const (
	ZoneRed   Zone = "RED"
	ZoneAmber Zone = "AMBER"
	ZoneGreen Zone = "GREEN"
)

func (z Zone) String() string { return string(z) }

// ParseZone reconstructs a Zone from its stored string form.
func ParseZone(s string) (Zone, error) {
	switch Zone(s) {
	case ZoneRed, ZoneAmber, ZoneGreen:
		return Zone(s), nil
	}
	return "", fmt.Errorf("invalid zone: %q", s)
}
