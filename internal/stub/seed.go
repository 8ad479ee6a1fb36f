package stub

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Seed is the initial content of the fake backends.
type Seed struct {
	// Companies restricts affiliate lookups to these company codes.
	// Empty means every company sees every affiliate.
	Companies  []string          `yaml:"companies,omitempty"`
	Affiliates []Affiliate       `yaml:"affiliates,omitempty"`
	ShortLinks map[string]string `yaml:"short_links,omitempty"`
	OfferCodes map[string]string `yaml:"offer_codes,omitempty"`
	Validator  *Credentials      `yaml:"validator,omitempty"`
}

// Affiliate is one known affiliate short code.
type Affiliate struct {
	Code        string `yaml:"code"`
	Name        string `yaml:"name"`
	DeeplinkURL string `yaml:"deeplink_url,omitempty"`
}

// Credentials are the Basic auth pair the fake validator accepts.
type Credentials struct {
	AppName   string `yaml:"app_name"`
	SecretKey string `yaml:"secret_key"`
}

// LoadSeed reads a seed file. Unknown fields are rejected.
func LoadSeed(path string) (Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return Seed{}, fmt.Errorf("open seed: %w", err)
	}
	defer f.Close()

	var seed Seed
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil {
		return Seed{}, fmt.Errorf("parse seed %s: %w", path, err)
	}
	return seed, nil
}
