package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightisyang/frankentui-sub001/pkg/certify"
	"github.com/nightisyang/frankentui-sub001/pkg/config"
	"github.com/nightisyang/frankentui-sub001/pkg/evidence"
	"github.com/nightisyang/frankentui-sub001/pkg/policy"
)

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	for _, k := range []string{config.EnvLogLevel, config.EnvLogFormat, config.EnvArchiveDSN, config.EnvTracing, config.EnvOTLP} {
		if _, set := os.LookupEnv(k); !set {
			t.Setenv(k, "")
		}
	}
	var stdout, stderr bytes.Buffer
	code := Run(append([]string{"migcert"}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestRun_NoArgsPrintsHelp(t *testing.T) {
	code, stdout, _ := run(t)
	assert.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "migcert")
	assert.Contains(t, stdout, "certify")
}

func TestRun_UsageErrors(t *testing.T) {
	tests := [][]string{
		{"bogus"},
		{"validate"},
		{"validate", "widgets"},
		{"rows", "everything"},
		{"decide", "--successes", "3"},
		{"decide", "--successes", "-1", "--failures", "0"},
		{"builtin"},
		{"certify", "--parser", "swc_ecma_parser"},
		{"certify", "--parser", "=^1.0"},
		{"licensing"},
	}
	for _, args := range tests {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			code, _, stderr := run(t, args...)
			assert.Equal(t, exitUsage, code)
			assert.Contains(t, stderr, "Error:")
		})
	}
}

func TestRun_Validate(t *testing.T) {
	for _, kind := range []string{"contract", "policy", "manifest", "model", "confidence_model", "provenance"} {
		t.Run(kind, func(t *testing.T) {
			code, stdout, stderr := run(t, "validate", kind)
			require.Equal(t, exitOK, code, stderr)

			var res validateResult
			require.NoError(t, json.Unmarshal([]byte(stdout), &res))
			assert.True(t, res.Valid)
			assert.NotEmpty(t, res.ID)
			assert.True(t, strings.HasPrefix(res.Digest, "sha256:"))
		})
	}
}

func TestRun_ValidateFile(t *testing.T) {
	t.Run("parse failure", func(t *testing.T) {
		path := writeFile(t, "contract.json", `{"contract_id": `)
		code, stdout, stderr := run(t, "validate", "contract", path)
		assert.Equal(t, exitFailure, code)
		assert.Empty(t, stdout)
		assert.Contains(t, stderr, "failed to parse semantic contract JSON")
	})

	t.Run("missing file", func(t *testing.T) {
		code, _, stderr := run(t, "validate", "model", filepath.Join(t.TempDir(), "absent.json"))
		assert.Equal(t, exitFailure, code)
		assert.Contains(t, stderr, "absent.json")
	})

	t.Run("embedded copy round trips", func(t *testing.T) {
		code, doc, _ := run(t, "builtin", "manifest")
		require.Equal(t, exitOK, code)
		path := writeFile(t, "manifest.json", doc)

		code, stdout, stderr := run(t, "validate", "manifest", path)
		require.Equal(t, exitOK, code, stderr)
		var res validateResult
		require.NoError(t, json.Unmarshal([]byte(stdout), &res))
		assert.Equal(t, "ftui-evidence-manifest", res.ID)
		assert.True(t, res.Valid)
	})
}

func TestRun_Rows(t *testing.T) {
	code, stdout, stderr := run(t, "rows", "planner")
	require.Equal(t, exitOK, code, stderr)
	var planner []policy.PlannerRow
	require.NoError(t, json.Unmarshal([]byte(stdout), &planner))
	assert.Len(t, planner, 13)

	code, stdout, _ = run(t, "rows", "certification")
	require.Equal(t, exitOK, code)
	var cert []policy.CertificationRow
	require.NoError(t, json.Unmarshal([]byte(stdout), &cert))
	assert.Len(t, cert, 13)
}

func TestRun_LineageAndJSONL(t *testing.T) {
	code, stdout, _ := run(t, "lineage")
	require.Equal(t, exitOK, code)
	var out lineageOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Len(t, out.Lineage, 8)
	assert.True(t, strings.HasPrefix(out.Digest, "sha256:"))

	code, stdout, _ = run(t, "jsonl")
	require.Equal(t, exitOK, code)
	records, err := evidence.ParseJSONL(strings.TrimSuffix(stdout, "\n"))
	require.NoError(t, err)
	assert.Len(t, records, 8)
}

func TestRun_Decide(t *testing.T) {
	code, stdout, stderr := run(t, "decide", "--successes", "200", "--failures", "1", "--claim-id", "claim-7")
	require.Equal(t, exitOK, code, stderr)

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, "auto_approve", out["decision"])
	assert.Equal(t, "auto_approve", out["boundary"])
	assert.Equal(t, "accept", out["verdict"])
	assert.Equal(t, "claim-7", out["claim_id"])
	assert.Nil(t, out["policy_id"])

	code, stdout, _ = run(t, "decide", "--successes", "1", "--failures", "20")
	require.Equal(t, exitOK, code)
	assert.Contains(t, stdout, `"verdict": "rollback"`)
}

func TestRun_Certify(t *testing.T) {
	t.Run("builtin run passes", func(t *testing.T) {
		code, stdout, stderr := run(t, "certify")
		require.Equal(t, exitOK, code, stderr)
		var report certify.Report
		require.NoError(t, json.Unmarshal([]byte(stdout), &report))
		assert.True(t, report.Passed)
		assert.Equal(t, "PASS: 5/5 checks passed", report.Summary)
		assert.Contains(t, stderr, "certification complete")
	})

	t.Run("unknown construct fails", func(t *testing.T) {
		code, stdout, stderr := run(t, "certify", "--construct", "Widget::Canvas")
		assert.Equal(t, exitFailure, code)
		assert.Contains(t, stdout, "UNKNOWN_CONSTRUCT")
		assert.Contains(t, stderr, "certification failed: FAIL: 1/5 checks failed")
	})

	t.Run("parser constraint from config", func(t *testing.T) {
		cfg := writeFile(t, "migcert.yaml", "parser_constraints:\n  swc_ecma_parser: \"^1.0\"\n")
		code, stdout, _ := run(t, "--config", cfg, "certify")
		assert.Equal(t, exitFailure, code)
		assert.Contains(t, stdout, "PARSER_VERSION_MISMATCH")
	})

	t.Run("parser constraint flag overrides config", func(t *testing.T) {
		cfg := writeFile(t, "migcert.yaml", "parser_constraints:\n  swc_ecma_parser: \"^1.0\"\n")
		code, _, stderr := run(t, "--config", cfg, "certify", "--parser", "swc_ecma_parser=~0.143")
		assert.Equal(t, exitOK, code, stderr)
	})

	t.Run("parser constraint with comma", func(t *testing.T) {
		code, _, stderr := run(t, "certify", "--parser", "swc_ecma_parser=>=0.140.0, <0.150.0")
		assert.Equal(t, exitOK, code, stderr)

		code, stdout, _ := run(t, "certify", "--parser", "swc_ecma_parser=>=0.144.0, <0.150.0")
		assert.Equal(t, exitFailure, code)
		assert.Contains(t, stdout, "PARSER_VERSION_MISMATCH")
	})
}

const cleanAssessment = `{
  "run_id": "run-20260115-0001",
  "chain": [
    {"stage_id": "source_snapshot", "input_hash": "sha256:aaa", "output_hash": "sha256:bbb", "tool_version": "snapshot 1.0", "timestamp": "2026-02-25T12:00:00Z"},
    {"stage_id": "extraction", "input_hash": "sha256:bbb", "output_hash": "sha256:ccc", "tool_version": "extractor 1.0", "timestamp": "2026-02-25T12:00:05Z"},
    {"stage_id": "ir_normalization", "input_hash": "sha256:ccc", "output_hash": "sha256:ddd", "tool_version": "ir 1.0", "timestamp": "2026-02-25T12:00:10Z"},
    {"stage_id": "translation", "input_hash": "sha256:ddd", "output_hash": "sha256:eee", "tool_version": "translator 1.0", "timestamp": "2026-02-25T12:00:15Z"},
    {"stage_id": "generated_output", "input_hash": "sha256:eee", "output_hash": "sha256:fff", "tool_version": "formatter 1.0", "timestamp": "2026-02-25T12:00:20Z"}
  ],
  "artifacts": [
    {"artifact_id": "react", "license_spdx": "MIT", "license_class": "permissive", "status": "clear", "risk_flags": [], "design_around_notes": null}
  ]
}`

func TestRun_Licensing(t *testing.T) {
	t.Run("clean run accepted", func(t *testing.T) {
		path := writeFile(t, "assessment.json", cleanAssessment)
		code, stdout, stderr := run(t, "licensing", path)
		require.Equal(t, exitOK, code, stderr)

		var res licensingResult
		require.NoError(t, json.Unmarshal([]byte(stdout), &res))
		assert.Equal(t, "accept", string(res.Action))
		assert.Equal(t, "clear", string(res.Report.OverallStatus))
		assert.Empty(t, res.ChainError)
		assert.Contains(t, stderr, "licensing assessed")
	})

	t.Run("blocked license rejected", func(t *testing.T) {
		body := strings.Replace(cleanAssessment, `"license_class": "permissive", "status": "clear", "risk_flags": []`,
			`"license_class": "strong_copyleft", "status": "blocked", "risk_flags": ["lp-copyleft-contamination"]`, 1)
		code, stdout, stderr := run(t, "licensing", writeFile(t, "assessment.json", body))
		assert.Equal(t, exitFailure, code)
		assert.Contains(t, stdout, `"overall_status": "blocked"`)
		assert.Contains(t, stdout, "lp-copyleft-contamination")
		assert.Contains(t, stderr, "licensing check: reject (status blocked)")
	})

	t.Run("broken chain rejected", func(t *testing.T) {
		body := strings.Replace(cleanAssessment, `"input_hash": "sha256:bbb"`, `"input_hash": "sha256:BROKEN"`, 1)
		code, stdout, _ := run(t, "licensing", writeFile(t, "assessment.json", body))
		assert.Equal(t, exitFailure, code)

		var res licensingResult
		require.NoError(t, json.Unmarshal([]byte(stdout), &res))
		assert.Equal(t, "reject", string(res.Action))
		assert.Contains(t, res.ChainError, "provenance chain broken")
	})

	t.Run("unknown license held", func(t *testing.T) {
		body := strings.Replace(cleanAssessment, `"status": "clear"`, `"status": "unknown"`, 1)
		code, stdout, _ := run(t, "licensing", writeFile(t, "assessment.json", body))
		assert.Equal(t, exitFailure, code)
		assert.Contains(t, stdout, `"action": "hold"`)
	})
}

func TestRun_Builtin(t *testing.T) {
	code, stdout, _ := run(t, "builtin", "policy")
	require.Equal(t, exitOK, code)
	assert.Contains(t, stdout, `"policy_id"`)

	code, stdout, _ = run(t, "builtin", "--schema", "contract")
	require.Equal(t, exitOK, code)
	assert.Contains(t, stdout, `"$schema"`)
}

func TestRun_Archive(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "archive.db")

	code, _, stderr := run(t, "archive", "records", "run-20260115-0001")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr, "no archive configured")

	code, _, stderr = run(t, "--archive", dsn, "jsonl", "--store")
	require.Equal(t, exitOK, code, stderr)

	code, stdout, stderr := run(t, "--archive", dsn, "archive", "records", "run-20260115-0001")
	require.Equal(t, exitOK, code, stderr)
	assert.Len(t, strings.Split(strings.TrimSpace(stdout), "\n"), 8)

	t.Setenv(config.EnvArchiveDSN, dsn)
	code, stdout, stderr = run(t, "certify")
	require.Equal(t, exitOK, code, stderr)
	var report certify.Report
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))

	code, stdout, _ = run(t, "archive", "reports", "run-20260115-0001")
	require.Equal(t, exitOK, code)
	assert.True(t, strings.HasPrefix(stdout, report.ReportID+"\t"))
	assert.Contains(t, stdout, "PASS: 5/5 checks passed")

	code, stdout, _ = run(t, "archive", "report", report.ReportID)
	require.Equal(t, exitOK, code)
	assert.Contains(t, stdout, report.ReportID)

	code, _, stderr = run(t, "archive", "report", "missing")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr, "not found")
}

func TestRun_Tracing(t *testing.T) {
	t.Setenv(config.EnvTracing, "true")
	code, _, stderr := run(t, "decide", "--successes", "10", "--failures", "0")
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stderr, `"Name":"migcert.decide"`)
}

func TestRun_BadConfig(t *testing.T) {
	t.Setenv(config.EnvLogLevel, "chatty")
	code, _, stderr := run(t, "lineage")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, stderr, "invalid config")
}
