package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/nightisyang/frankentui-sub001/pkg/canonicalize"
)

// Schema is a lazily compiled Draft 2020-12 shape gate for one document kind.
// A compiled schema is immutable and safe for concurrent use.
type Schema struct {
	document string
	url      string
	raw      []byte

	once     sync.Once
	compiled *jsonschema.Schema
	err      error
}

// NewSchema registers the raw schema text for doc under url. Compilation is
// deferred to the first Decode.
func NewSchema(doc, url string, raw []byte) *Schema {
	return &Schema{document: doc, url: url, raw: raw}
}

// Document returns the human-readable document name used in errors.
func (s *Schema) Document() string { return s.document }

func (s *Schema) compile() (*jsonschema.Schema, error) {
	s.once.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(s.url, bytes.NewReader(s.raw)); err != nil {
			s.err = fmt.Errorf("add %s schema: %w", s.document, err)
			return
		}
		s.compiled, s.err = c.Compile(s.url)
		if s.err != nil {
			s.err = fmt.Errorf("compile %s schema: %w", s.document, s.err)
		}
	})
	return s.compiled, s.err
}

// Decode parses data into v. The input must be a single well-formed JSON value
// that satisfies the schema; any object key v does not declare is rejected.
// Every failure is a *Error of kind parse.
func (s *Schema) Decode(data []byte, v any) error {
	compiled, err := s.compile()
	if err != nil {
		return parseError(s.document, ErrCodeSchema, err)
	}

	var instance any
	gen := json.NewDecoder(bytes.NewReader(data))
	gen.UseNumber()
	if err := gen.Decode(&instance); err != nil {
		return parseError(s.document, ErrCodeParse, err)
	}
	if err := expectEOF(gen); err != nil {
		return parseError(s.document, ErrCodeParse, err)
	}

	if err := compiled.Validate(instance); err != nil {
		return parseError(s.document, ErrCodeSchema, schemaReason(err))
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return parseError(s.document, ErrCodeParse, err)
	}
	return nil
}

func expectEOF(dec *json.Decoder) error {
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("trailing data after top-level value")
	}
	return nil
}

// schemaReason flattens a jsonschema validation error into one line that
// names the failing instance locations.
func schemaReason(err error) error {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err
	}
	var leaves []string
	collectLeaves(ve, &leaves)
	if len(leaves) == 0 {
		return err
	}
	return errors.New(strings.Join(leaves, "; "))
}

func collectLeaves(ve *jsonschema.ValidationError, out *[]string) {
	if len(ve.Causes) == 0 {
		loc := ve.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		*out = append(*out, fmt.Sprintf("%s: %s", loc, ve.Message))
		return
	}
	for _, c := range ve.Causes {
		collectLeaves(c, out)
	}
}

// Digest returns the canonical "sha256:<hex>" digest of a document value.
func Digest(v any) (string, error) {
	d, err := canonicalize.Digest(v)
	if err != nil {
		return "", fmt.Errorf("document digest: %w", err)
	}
	return d, nil
}
