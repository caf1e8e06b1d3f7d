package certify

import (
	"fmt"
	"slices"

	"github.com/Masterminds/semver/v3"
)

// CheckParserVersion verifies that the parser version recorded in a source
// fingerprint satisfies a semver constraint.
func CheckParserVersion(parser, recorded, constraintSpec string) error {
	constraint, err := semver.NewConstraint(constraintSpec)
	if err != nil {
		return fmt.Errorf("invalid version constraint for parser %s: %w", parser, err)
	}
	v, err := semver.NewVersion(recorded)
	if err != nil {
		return fmt.Errorf("invalid recorded version of parser %s: %w", parser, err)
	}
	if !constraint.Check(v) {
		return fmt.Errorf("parser %s requires %s, but run used %s", parser, constraintSpec, recorded)
	}
	return nil
}

func parserChecks(recorded, constraints map[string]string) []Check {
	names := make([]string, 0, len(constraints))
	for name := range constraints {
		names = append(names, name)
	}
	slices.Sort(names)

	checks := make([]Check, 0, len(names))
	for _, name := range names {
		spec := constraints[name]
		c := Check{Name: "parser_version:" + name}
		version, ok := recorded[name]
		switch {
		case !ok:
			c.Reason = ReasonParserMissing
			c.Detail = fmt.Sprintf("parser %s not recorded in source fingerprint", name)
		default:
			if err := CheckParserVersion(name, version, spec); err != nil {
				c.Reason = ReasonParserVersion
				c.Detail = err.Error()
			} else {
				c.Pass = true
				c.Detail = fmt.Sprintf("%s satisfies %s", version, spec)
			}
		}
		checks = append(checks, c)
	}
	return checks
}
