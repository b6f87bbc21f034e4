// Package qrconfig resolves a scanned QR number to the screening location
// it was issued for. Locations stamp submissions with context; they never
// affect scoring.
package qrconfig

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/knhealth/knscreen/pkg/flow"
)

// ErrUnknownQR is returned for QR numbers with no registration. A scanned
// code that resolves to nothing must block the session before intake.
var ErrUnknownQR = errors.New("unknown QR code")

// locations.yaml lives in config/ at the repo root; the embedded copy is
// the fallback for binaries shipped without a config directory.
//
// Adding a screening site should require only a new entry in that file.

//go:embed locations.yaml
var embeddedLocations []byte

// Location is the context a QR code resolves to.
type Location struct {
	QRNo         string        `yaml:"qr_no"`
	Name         string        `yaml:"name"`
	LocationCode string        `yaml:"location_code"`
	Unit         string        `yaml:"unit"`
	Language     flow.Language `yaml:"language,omitempty"` // default UI language at this site
}

type locationFile struct {
	Locations []Location `yaml:"locations"`
}

// Registry holds the known QR registrations.
type Registry struct {
	byQR  map[string]Location
	order []string
}

// Parse decodes and validates a locations file. Unknown fields are
// rejected so a typo in a site entry fails at startup.
func Parse(data []byte) (*Registry, error) {
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)

	var file locationFile
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("qr registry: parse: %w", err)
	}
	if len(file.Locations) == 0 {
		return nil, fmt.Errorf("qr registry: no locations defined")
	}

	r := &Registry{byQR: make(map[string]Location, len(file.Locations))}
	for _, loc := range file.Locations {
		if strings.TrimSpace(loc.QRNo) == "" || strings.TrimSpace(loc.LocationCode) == "" {
			return nil, fmt.Errorf("qr registry: entry %q missing qr_no or location_code", loc.Name)
		}
		if _, dup := r.byQR[loc.QRNo]; dup {
			return nil, fmt.Errorf("qr registry: duplicate qr_no %q", loc.QRNo)
		}
		r.byQR[loc.QRNo] = loc
		r.order = append(r.order, loc.QRNo)
	}
	return r, nil
}

// Load reads <dir>/locations.yaml when present, falling back to the
// embedded registry. dir resolution mirrors the config lookup used for
// the question set: current working directory first, then next to the
// executable.
func Load(dir string) (*Registry, error) {
	if dir != "" {
		path := filepath.Join(dir, "locations.yaml")
		if data, err := os.ReadFile(path); err == nil {
			return Parse(data)
		}
	}
	return Parse(embeddedLocations)
}

// FindConfigDir locates the config directory for development checkouts and
// installed binaries. Returns "" when none exists (embedded data is used).
func FindConfigDir() string {
	if cwd, err := os.Getwd(); err == nil {
		dir := filepath.Join(cwd, "config")
		if _, err := os.Stat(filepath.Join(dir, "locations.yaml")); err == nil {
			return dir
		}
	}
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Join(filepath.Dir(exe), "config")
		if _, err := os.Stat(filepath.Join(dir, "locations.yaml")); err == nil {
			return dir
		}
	}
	return ""
}

// Resolve returns the location a QR number was registered for.
func (r *Registry) Resolve(qrNo string) (Location, error) {
	loc, ok := r.byQR[qrNo]
	if !ok {
		return Location{}, fmt.Errorf("%w: %s", ErrUnknownQR, qrNo)
	}
	return loc, nil
}

// List returns all registrations sorted by QR number.
func (r *Registry) List() []Location {
	out := make([]Location, 0, len(r.byQR))
	for _, qr := range r.order {
		out = append(out, r.byQR[qr])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QRNo < out[j].QRNo })
	return out
}
