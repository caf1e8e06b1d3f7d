// Package builtin embeds the blessed certification documents and the JSON
// Schemas that gate their shape. It only hands out bytes; typed loading lives
// in the per-document packages.
package builtin

import (
	"embed"
	"fmt"
	"io/fs"
	"slices"
)

// Name identifies one of the blessed document kinds.
type Name string

const (
	SemanticContract     Name = "semantic_contract"
	TransformationPolicy Name = "transformation_policy"
	EvidenceManifest     Name = "evidence_manifest"
	ConfidenceModel      Name = "confidence_model"
	LicensingProvenance  Name = "licensing_provenance"
)

// Names lists every document kind in dependency order.
func Names() []Name {
	return []Name{SemanticContract, TransformationPolicy, EvidenceManifest, ConfidenceModel, LicensingProvenance}
}

//go:embed documents/*.json schemas/*.json
var files embed.FS

// Document returns a fresh copy of the blessed document text.
func Document(name Name) ([]byte, error) {
	return read("documents/" + string(name) + ".json")
}

// Schema returns the JSON Schema text for the document kind.
func Schema(name Name) ([]byte, error) {
	return read("schemas/" + string(name) + ".schema.json")
}

// MustSchema is Schema for package-level initialisation; the schemas are
// compiled into the binary so a miss is a build defect.
func MustSchema(name Name) []byte {
	b, err := Schema(name)
	if err != nil {
		panic(err)
	}
	return b
}

// ParseName maps user input (e.g. a CLI argument) to a Name.
func ParseName(s string) (Name, error) {
	n := Name(s)
	if slices.Contains(Names(), n) {
		return n, nil
	}
	return "", fmt.Errorf("unknown document kind %q (want one of %v)", s, Names())
}

func read(path string) ([]byte, error) {
	b, err := fs.ReadFile(files, path)
	if err != nil {
		return nil, fmt.Errorf("builtin: %w", err)
	}
	return b, nil
}
