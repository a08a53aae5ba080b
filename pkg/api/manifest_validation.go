package api

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
)

var manifestValidator = validator.New()

// Validate performs structural validation of the manifest, and enforces the
// constraints the struct tags cannot express: case names must be unique, and
// top paths must stay inside the suite directory.
func (m *TestSuiteManifest) Validate() error {
	if err := manifestValidator.Struct(m); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(m.Cases))
	for _, tc := range m.Cases {
		if _, ok := seen[tc.Name]; ok {
			return fmt.Errorf("case names not unique; found duplicate: %s", tc.Name)
		}
		seen[tc.Name] = struct{}{}

		if err := validateTopPath(tc); err != nil {
			return err
		}
	}

	return nil
}

func validateTopPath(tc *TestCase) error {
	if filepath.IsAbs(tc.Top) {
		return fmt.Errorf("case %s: top path must be relative to the suite directory: %s", tc.Name, tc.Top)
	}

	clean := filepath.Clean(tc.Top)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("case %s: top path escapes the suite directory: %s", tc.Name, tc.Top)
	}

	return nil
}
