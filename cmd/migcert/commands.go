package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nightisyang/frankentui-sub001/pkg/builtin"
	"github.com/nightisyang/frankentui-sub001/pkg/certify"
	"github.com/nightisyang/frankentui-sub001/pkg/confidence"
	"github.com/nightisyang/frankentui-sub001/pkg/contract"
	"github.com/nightisyang/frankentui-sub001/pkg/evidence"
	"github.com/nightisyang/frankentui-sub001/pkg/policy"
	"github.com/nightisyang/frankentui-sub001/pkg/provenance"
)

// validateResult is the output of the validate command.
type validateResult struct {
	Document string `json:"document"`
	ID       string `json:"id"`
	Digest   string `json:"digest"`
	Valid    bool   `json:"valid"`
}

func (a *app) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <kind> [file]",
		Short: "Parse and validate a document (contract, policy, manifest, model, provenance)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}
			return a.track(cmd, func(ctx context.Context) error {
				if len(args) == 2 {
					a.setDocumentPath(kind, args[1])
				}
				res, err := a.validate(kind)
				if err != nil {
					a.logger.WarnContext(ctx, "document rejected", "document", string(kind), "error", err)
					return err
				}
				a.logger.InfoContext(ctx, "document valid", "document", res.Document, "id", res.ID)
				return a.writeJSON(res)
			})
		},
	}
}

func (a *app) setDocumentPath(kind builtin.Name, path string) {
	switch kind {
	case builtin.SemanticContract:
		a.cfg.Documents.Contract = path
	case builtin.TransformationPolicy:
		a.cfg.Documents.Policy = path
	case builtin.EvidenceManifest:
		a.cfg.Documents.Manifest = path
	case builtin.ConfidenceModel:
		a.cfg.Documents.Model = path
	case builtin.LicensingProvenance:
		a.cfg.Documents.Provenance = path
	}
}

func (a *app) validate(kind builtin.Name) (validateResult, error) {
	res := validateResult{Document: string(kind), Valid: true}
	var (
		digest string
		err    error
	)
	switch kind {
	case builtin.SemanticContract:
		var c *contract.Contract
		if c, err = a.loadContract(); err == nil {
			res.ID = c.ContractID
			digest, err = c.Digest()
		}
	case builtin.TransformationPolicy:
		var m *policy.Matrix
		if m, _, err = a.loadPolicy(); err == nil {
			res.ID = m.PolicyID
			digest, err = m.Digest()
		}
	case builtin.EvidenceManifest:
		var m *evidence.Manifest
		if m, err = a.loadManifest(); err == nil {
			res.ID = m.ManifestID
			digest, err = m.Digest()
		}
	case builtin.ConfidenceModel:
		var m *confidence.Model
		if m, err = a.loadModel(); err == nil {
			res.ID = m.ModelID
			digest, err = m.Digest()
		}
	case builtin.LicensingProvenance:
		var c *provenance.Contract
		if c, err = a.loadProvenance(); err == nil {
			res.ID = c.ContractID
			digest, err = c.Digest()
		}
	}
	res.Digest = digest
	return res, err
}

func (a *app) rowsCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "rows planner|certification",
		Short:     "Print the planner or certification projection of the policy matrix",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"planner", "certification"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.track(cmd, func(context.Context) error {
				m, _, err := a.loadPolicy()
				if err != nil {
					return err
				}
				if args[0] == "planner" {
					return a.writeJSON(m.PlannerRows())
				}
				return a.writeJSON(m.CertificationRows())
			})
		},
	}
}

type lineageOutput struct {
	RunID   string                  `json:"run_id"`
	Digest  string                  `json:"digest"`
	Lineage []evidence.LineageEntry `json:"lineage"`
}

func (a *app) lineageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lineage",
		Short: "Print the stage lineage of the evidence manifest and its digest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.track(cmd, func(context.Context) error {
				m, err := a.loadManifest()
				if err != nil {
					return err
				}
				digest, err := m.LineageDigest()
				if err != nil {
					return err
				}
				return a.writeJSON(lineageOutput{RunID: m.RunID, Digest: digest, Lineage: m.StageLineage()})
			})
		},
	}
}

func (a *app) jsonlCmd() *cobra.Command {
	var store bool
	cmd := &cobra.Command{
		Use:   "jsonl",
		Short: "Export stage records of the evidence manifest as JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.track(cmd, func(ctx context.Context) error {
				m, err := a.loadManifest()
				if err != nil {
					return err
				}
				if err := m.WriteJSONL(a.stdout); err != nil {
					return err
				}
				if !store {
					return nil
				}
				s, err := a.openArchive(ctx)
				if err != nil {
					return err
				}
				defer func() { _ = s.Close() }()
				records := m.Records()
				if err := s.AppendRecords(ctx, records); err != nil {
					return err
				}
				a.logger.InfoContext(ctx, "records archived", "run_id", m.RunID, "count", len(records))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&store, "store", false, "also append the records to the archive")
	return cmd
}

type decideOutput struct {
	confidence.ExpectedLossResult
	Boundary confidence.Decision     `json:"boundary"`
	Verdict  evidence.VerdictOutcome `json:"verdict"`
}

func (a *app) decideCmd() *cobra.Command {
	var (
		successes, failures uint32
		claimID, policyID   string
	)
	cmd := &cobra.Command{
		Use:   "decide --successes N --failures M",
		Short: "Compute the posterior and expected-loss decision for raw counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.track(cmd, func(ctx context.Context) error {
				m, err := a.loadModel()
				if err != nil {
					return err
				}
				p := m.ComputePosterior(successes, failures)
				res := m.ExpectedLossDecision(p, optional(claimID), optional(policyID))
				out := decideOutput{
					ExpectedLossResult: res,
					Boundary:           m.Decide(p),
					Verdict:            certify.VerdictFor(res.Decision),
				}
				trace.SpanFromContext(ctx).SetAttributes(
					attribute.Int64("successes", int64(successes)),
					attribute.Int64("failures", int64(failures)),
					attribute.String("decision", res.Decision.String()),
				)
				a.obs.RecordDecision(ctx, res.Decision.String(), string(out.Verdict))
				a.logger.InfoContext(ctx, "decision computed",
					"successes", successes,
					"failures", failures,
					"posterior_mean", p.Mean,
					"decision", res.Decision,
				)
				return a.writeJSON(out)
			})
		},
	}
	cmd.Flags().Uint32Var(&successes, "successes", 0, "observed successes")
	cmd.Flags().Uint32Var(&failures, "failures", 0, "observed failures")
	cmd.Flags().StringVar(&claimID, "claim-id", "", "claim id recorded with the decision")
	cmd.Flags().StringVar(&policyID, "policy-id", "", "policy id recorded with the decision")
	_ = cmd.MarkFlagRequired("successes")
	_ = cmd.MarkFlagRequired("failures")
	return cmd
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (a *app) certifyCmd() *cobra.Command {
	var (
		constructs []string
		parsers    []string
		drift      float64
	)
	cmd := &cobra.Command{
		Use:   "certify [--construct sig]...",
		Short: "Certify a run from all four documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			extra, err := parseConstraintFlags(parsers)
			if err != nil {
				return err
			}
			return a.track(cmd, func(ctx context.Context) error {
				in, err := a.certifyInputs()
				if err != nil {
					return err
				}
				in.Constructs = constructs
				in.Drift = drift
				in.ParserConstraints = mergeConstraints(a.cfg.ParserConstraints, extra)

				report, err := certify.New(certify.WithLogger(a.logger)).Certify(ctx, in)
				if err != nil {
					return err
				}
				a.obs.RecordDecision(ctx, report.Decision.Decision.String(), string(report.ComputedVerdict))
				if err := a.writeJSON(report); err != nil {
					return err
				}
				if a.cfg.ArchiveDSN != "" {
					s, err := a.openArchive(ctx)
					if err != nil {
						return err
					}
					defer func() { _ = s.Close() }()
					if err := s.SaveReport(ctx, report); err != nil {
						return err
					}
					a.logger.InfoContext(ctx, "report archived", "report_id", report.ReportID)
				}
				if !report.Passed {
					return fmt.Errorf("certification failed: %s", report.Summary)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringArrayVar(&constructs, "construct", nil, "construct signature used by the migrated source (repeatable)")
	cmd.Flags().StringArrayVar(&parsers, "parser", nil, "parser version constraint, name=constraint (repeatable)")
	cmd.Flags().Float64Var(&drift, "drift", 0, "observed calibration drift")
	return cmd
}

// licensingInput is the file read by the licensing command.
type licensingInput struct {
	RunID     string                   `json:"run_id"`
	Chain     []provenance.ChainRecord `json:"chain"`
	Artifacts []provenance.Artifact    `json:"artifacts"`
}

type licensingResult struct {
	Report     provenance.Report `json:"report"`
	Action     provenance.Action `json:"action"`
	ChainError string            `json:"chain_error,omitempty"`
}

func (a *app) licensingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "licensing <assessment.json>",
		Short: "Check a run's provenance chain and third-party licenses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.track(cmd, func(ctx context.Context) error {
				c, err := a.loadProvenance()
				if err != nil {
					return err
				}
				in, err := readLicensingInput(args[0])
				if err != nil {
					return err
				}
				res := licensingResult{Report: c.Assess(in.RunID, in.Chain, in.Artifacts)}
				res.Action = c.FailSafeAction(res.Report.OverallStatus)
				// A missing stage or broken link always rejects.
				if err := c.ValidateChain(in.Chain); err != nil {
					res.ChainError = err.Error()
					res.Action = provenance.ActionReject
				}
				a.logger.InfoContext(ctx, "licensing assessed",
					"run_id", in.RunID,
					"status", string(res.Report.OverallStatus),
					"action", string(res.Action),
					"flags", len(res.Report.UnresolvedRiskFlags))
				if err := a.writeJSON(res); err != nil {
					return err
				}
				if res.Action != provenance.ActionAccept {
					return fmt.Errorf("licensing check: %s (status %s)", res.Action, res.Report.OverallStatus)
				}
				return nil
			})
		},
	}
}

func readLicensingInput(path string) (licensingInput, error) {
	var in licensingInput
	data, err := os.ReadFile(path)
	if err != nil {
		return in, fmt.Errorf("read %s: %w", path, err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return in, fmt.Errorf("parse %s: %w", path, err)
	}
	return in, nil
}

func (a *app) certifyInputs() (certify.Inputs, error) {
	m, c, err := a.loadPolicy()
	if err != nil {
		return certify.Inputs{}, err
	}
	manifest, err := a.loadManifest()
	if err != nil {
		return certify.Inputs{}, err
	}
	model, err := a.loadModel()
	if err != nil {
		return certify.Inputs{}, err
	}
	return certify.Inputs{Contract: c, Matrix: m, Manifest: manifest, Model: model}, nil
}

// parseConstraintFlags splits each name=constraint on its first '='. The
// constraint itself may hold commas and further '=' signs.
func parseConstraintFlags(values []string) (map[string]string, error) {
	out := make(map[string]string, len(values))
	for _, v := range values {
		name, constraint, ok := strings.Cut(v, "=")
		name, constraint = strings.TrimSpace(name), strings.TrimSpace(constraint)
		if !ok || name == "" || constraint == "" {
			return nil, fmt.Errorf("invalid --parser %q (want name=constraint)", v)
		}
		out[name] = constraint
	}
	return out, nil
}

func mergeConstraints(base, extra map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func (a *app) builtinCmd() *cobra.Command {
	var schema bool
	cmd := &cobra.Command{
		Use:   "builtin <kind>",
		Short: "Print an embedded document or its JSON Schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(args[0])
			if err != nil {
				return err
			}
			return a.track(cmd, func(context.Context) error {
				read := builtin.Document
				if schema {
					read = builtin.Schema
				}
				data, err := read(kind)
				if err != nil {
					return err
				}
				_, err = a.stdout.Write(data)
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&schema, "schema", false, "print the JSON Schema instead of the document")
	return cmd
}

func (a *app) archiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Inspect archived stage records and reports",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "records <run-id>",
			Short: "Print archived stage records of a run as JSON lines",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.track(cmd, func(ctx context.Context) error {
					s, err := a.openArchive(ctx)
					if err != nil {
						return err
					}
					defer func() { _ = s.Close() }()
					records, err := s.Records(ctx, args[0])
					if err != nil {
						return err
					}
					for _, r := range records {
						if err := a.writeRecord(r); err != nil {
							return err
						}
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "reports <run-id>",
			Short: "List archived reports of a run",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.track(cmd, func(ctx context.Context) error {
					s, err := a.openArchive(ctx)
					if err != nil {
						return err
					}
					defer func() { _ = s.Close() }()
					list, err := s.Reports(ctx, args[0])
					if err != nil {
						return err
					}
					for _, r := range list {
						_, _ = fmt.Fprintf(a.stdout, "%s\t%s\t%s\t%s\n", r.ReportID, r.ArchivedAt.Format(time.RFC3339), r.ComputedVerdict, r.Summary)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "report <report-id>",
			Short: "Print one archived report",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.track(cmd, func(ctx context.Context) error {
					s, err := a.openArchive(ctx)
					if err != nil {
						return err
					}
					defer func() { _ = s.Close() }()
					r, err := s.Report(ctx, args[0])
					if err != nil {
						return err
					}
					return a.writeJSON(r)
				})
			},
		},
	)
	return cmd
}

func (a *app) writeRecord(r evidence.Record) error {
	line, err := json.Marshal(r)
	if err != nil {
		return err
	}
	_, err = a.stdout.Write(append(line, '\n'))
	return err
}
