// Package phone canonicalises phone contacts to E.164.
package phone

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion is used when no region is configured
const DefaultRegion = "US"

// ErrInvalidNumber is returned for input that parses but is not a valid
// number in any region.
var ErrInvalidNumber = errors.New("invalid phone number")

// Normalizer formats numbers as E.164, reading national numbers as
// belonging to its default region.
type Normalizer struct {
	region string
}

// NewNormalizer creates a Normalizer. An empty region selects DefaultRegion.
func NewNormalizer(region string) *Normalizer {
	region = strings.ToUpper(strings.TrimSpace(region))
	if region == "" {
		region = DefaultRegion
	}
	return &Normalizer{region: region}
}

// Region returns the region national numbers are resolved against
func (n *Normalizer) Region() string {
	return n.region
}

// Normalize parses raw and returns it in E.164 form
func (n *Normalizer) Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidNumber)
	}
	num, err := phonenumbers.Parse(raw, n.region)
	if err != nil {
		return "", fmt.Errorf("parse %q: %w", raw, err)
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", fmt.Errorf("%w: %q", ErrInvalidNumber, raw)
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}
