package match

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"govwatch/discovery-service/internal/model"
)

var validate = validator.New()

// LoadProfile reads a CompanyProfile from a YAML file and validates it.
func LoadProfile(path string) (model.CompanyProfile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return model.CompanyProfile{}, fmt.Errorf("read profile: %w", err)
	}
	return ParseProfile(b)
}

// ParseProfile decodes and validates a YAML profile. Unknown fields are
// rejected and certification keys are lower-cased.
func ParseProfile(b []byte) (model.CompanyProfile, error) {
	var p model.CompanyProfile
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return model.CompanyProfile{}, fmt.Errorf("parse profile: %w", err)
	}
	if err := validate.Struct(p); err != nil {
		return model.CompanyProfile{}, fmt.Errorf("invalid profile: %w", err)
	}

	if len(p.Certifications) > 0 {
		certs := make(map[string]bool, len(p.Certifications))
		for k, v := range p.Certifications {
			certs[strings.ToLower(strings.TrimSpace(k))] = v
		}
		p.Certifications = certs
	}
	return p, nil
}
