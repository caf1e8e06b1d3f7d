package evidence

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/nightisyang/frankentui-sub001/pkg/canonicalize"
)

// StageLineage projects each stage to its ids, hashes and status, in ledger
// order. It is enough to replay-verify the chain without the full manifest.
func (m *Manifest) StageLineage() []LineageEntry {
	out := make([]LineageEntry, 0, len(m.Stages))
	for _, s := range m.Stages {
		out = append(out, LineageEntry{
			StageID:       s.StageID,
			StageIndex:    s.StageIndex,
			CorrelationID: s.CorrelationID,
			ClaimID:       s.ClaimID,
			EvidenceID:    s.EvidenceID,
			PolicyID:      s.PolicyID,
			TraceID:       s.TraceID,
			InputHash:     s.InputHash,
			OutputHash:    s.OutputHash,
			Status:        s.Status,
		})
	}
	return out
}

// LineageDigest is the canonical digest of StageLineage. Two replays of a
// migration are deterministic iff their lineage digests match.
func (m *Manifest) LineageDigest() (string, error) {
	d, err := canonicalize.Digest(m.StageLineage())
	if err != nil {
		return "", fmt.Errorf("lineage digest: %w", err)
	}
	return d, nil
}

// Records returns one stage_completed record per stage, in ledger order.
// The record timestamp is the stage finish time.
func (m *Manifest) Records() []Record {
	out := make([]Record, 0, len(m.Stages))
	for _, s := range m.Stages {
		r := Record{
			Event:         StageEventCompleted,
			RunID:         m.RunID,
			CorrelationID: s.CorrelationID,
			StageID:       s.StageID,
			StageIndex:    s.StageIndex,
			ClaimID:       s.ClaimID,
			EvidenceID:    s.EvidenceID,
			PolicyID:      s.PolicyID,
			TraceID:       s.TraceID,
			Timestamp:     s.FinishedAt,
			Status:        s.Status,
			InputHash:     s.InputHash,
			OutputHash:    s.OutputHash,
			ArtifactCount: uint32(len(s.ArtifactPaths)),
		}
		if s.Error != nil {
			e := *s.Error
			r.Error = &e
		}
		out = append(out, r)
	}
	return out
}

// EvidenceJSONL renders Records as newline-separated JSON objects with no
// trailing newline.
func (m *Manifest) EvidenceJSONL() (string, error) {
	records := m.Records()
	lines := make([]string, 0, len(records))
	for _, r := range records {
		b, err := json.Marshal(r)
		if err != nil {
			return "", fmt.Errorf("marshal stage %q: %w", r.StageID, err)
		}
		lines = append(lines, string(b))
	}
	return strings.Join(lines, "\n"), nil
}

// WriteJSONL streams Records to w, one newline-terminated object per stage.
// Callers sharing w across runs must serialise their writes.
func (m *Manifest) WriteJSONL(w io.Writer) error {
	for _, r := range m.Records() {
		b, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal stage %q: %w", r.StageID, err)
		}
		if _, err := w.Write(append(b, '\n')); err != nil {
			return fmt.Errorf("write stage %q: %w", r.StageID, err)
		}
	}
	return nil
}

// ParseJSONL reads records produced by WriteJSONL or EvidenceJSONL.
func ParseJSONL(data string) ([]Record, error) {
	var out []Record
	for i, line := range strings.Split(data, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var r Record
		dec := json.NewDecoder(strings.NewReader(line))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&r); err != nil {
			return nil, fmt.Errorf("jsonl line %d: %w", i+1, err)
		}
		out = append(out, r)
	}
	return slices.Clip(out), nil
}
