package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nightisyang/frankentui-sub001/pkg/archive"
	"github.com/nightisyang/frankentui-sub001/pkg/builtin"
	"github.com/nightisyang/frankentui-sub001/pkg/confidence"
	"github.com/nightisyang/frankentui-sub001/pkg/config"
	"github.com/nightisyang/frankentui-sub001/pkg/contract"
	"github.com/nightisyang/frankentui-sub001/pkg/evidence"
	"github.com/nightisyang/frankentui-sub001/pkg/observability"
	"github.com/nightisyang/frankentui-sub001/pkg/policy"
	"github.com/nightisyang/frankentui-sub001/pkg/provenance"
)

type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	overrides  struct {
		logLevel   string
		logFormat  string
		archiveDSN string
		docs       config.Documents
	}

	cfg    *config.Config
	logger *slog.Logger
	obs    *observability.Provider
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:               "migcert",
		Short:             "Certify UI migrations against a semantic contract",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error { return failure(a.setup(cmd.Context())) },
	}
	root.CompletionOptions.DisableDefaultCmd = true

	f := root.PersistentFlags()
	f.StringVar(&a.configPath, "config", "", "path to a YAML config file")
	f.StringVar(&a.overrides.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	f.StringVar(&a.overrides.logFormat, "log-format", "", "log format (text, json)")
	f.StringVar(&a.overrides.archiveDSN, "archive", "", "run archive DSN (SQLite path or postgres:// URL)")
	f.StringVar(&a.overrides.docs.Contract, "contract", "", "semantic contract JSON (default: embedded)")
	f.StringVar(&a.overrides.docs.Policy, "policy", "", "transformation policy JSON (default: embedded)")
	f.StringVar(&a.overrides.docs.Manifest, "manifest", "", "evidence manifest JSON (default: embedded)")
	f.StringVar(&a.overrides.docs.Model, "model", "", "confidence model JSON (default: embedded)")
	f.StringVar(&a.overrides.docs.Provenance, "provenance", "", "licensing provenance contract JSON (default: embedded)")

	root.AddCommand(
		a.validateCmd(),
		a.rowsCmd(),
		a.lineageCmd(),
		a.jsonlCmd(),
		a.decideCmd(),
		a.certifyCmd(),
		a.licensingCmd(),
		a.builtinCmd(),
		a.archiveCmd(),
	)
	return root
}

// setup loads configuration and builds the logger and telemetry provider.
func (a *app) setup(ctx context.Context) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if v := a.overrides.logLevel; v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := a.overrides.logFormat; v != "" {
		cfg.LogFormat = strings.ToLower(v)
	}
	if v := a.overrides.archiveDSN; v != "" {
		cfg.ArchiveDSN = v
	}
	mergePath(&cfg.Documents.Contract, a.overrides.docs.Contract)
	mergePath(&cfg.Documents.Policy, a.overrides.docs.Policy)
	mergePath(&cfg.Documents.Manifest, a.overrides.docs.Manifest)
	mergePath(&cfg.Documents.Model, a.overrides.docs.Model)
	mergePath(&cfg.Documents.Provenance, a.overrides.docs.Provenance)
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := observability.NewLogger(a.stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	a.logger = logger.With("component", "migcert")

	obsCfg := observability.DefaultConfig()
	obsCfg.Enabled = cfg.Tracing
	obsCfg.OTLPEndpoint = cfg.OTLPEndpoint
	obsCfg.Insecure = true
	obsCfg.Writer = a.stderr
	a.obs, err = observability.New(ctx, obsCfg)
	return err
}

func (a *app) shutdown(ctx context.Context) {
	if a.obs != nil {
		_ = a.obs.Shutdown(ctx)
	}
}

func mergePath(dst *string, override string) {
	if override != "" {
		*dst = override
	}
}

// track wraps a command body in an operation span.
func (a *app) track(cmd *cobra.Command, fn func(ctx context.Context) error) error {
	ctx, done := a.obs.TrackOperation(cmd.Context(), "migcert."+cmd.Name())
	err := fn(ctx)
	done(err)
	return failure(err)
}

func (a *app) writeJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func (a *app) openArchive(ctx context.Context) (*archive.Store, error) {
	if a.cfg.ArchiveDSN == "" {
		return nil, fmt.Errorf("no archive configured (set --archive or %s)", config.EnvArchiveDSN)
	}
	return archive.Open(ctx, a.cfg.ArchiveDSN)
}

// kindAliases are the short document names accepted on the command line.
var kindAliases = map[string]builtin.Name{
	"contract":   builtin.SemanticContract,
	"policy":     builtin.TransformationPolicy,
	"manifest":   builtin.EvidenceManifest,
	"model":      builtin.ConfidenceModel,
	"provenance": builtin.LicensingProvenance,
}

func parseKind(s string) (builtin.Name, error) {
	if n, ok := kindAliases[strings.ToLower(s)]; ok {
		return n, nil
	}
	return builtin.ParseName(s)
}

func readDocument(path string, name builtin.Name) ([]byte, error) {
	if path == "" {
		return builtin.Document(name)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func (a *app) loadContract() (*contract.Contract, error) {
	data, err := readDocument(a.cfg.Documents.Contract, builtin.SemanticContract)
	if err != nil {
		return nil, err
	}
	return contract.Parse(data)
}

func (a *app) loadPolicy() (*policy.Matrix, *contract.Contract, error) {
	c, err := a.loadContract()
	if err != nil {
		return nil, nil, err
	}
	data, err := readDocument(a.cfg.Documents.Policy, builtin.TransformationPolicy)
	if err != nil {
		return nil, nil, err
	}
	m, err := policy.Parse(data, c)
	if err != nil {
		return nil, nil, err
	}
	return m, c, nil
}

func (a *app) loadManifest() (*evidence.Manifest, error) {
	data, err := readDocument(a.cfg.Documents.Manifest, builtin.EvidenceManifest)
	if err != nil {
		return nil, err
	}
	return evidence.Parse(data)
}

func (a *app) loadModel() (*confidence.Model, error) {
	data, err := readDocument(a.cfg.Documents.Model, builtin.ConfidenceModel)
	if err != nil {
		return nil, err
	}
	return confidence.Parse(data)
}

func (a *app) loadProvenance() (*provenance.Contract, error) {
	data, err := readDocument(a.cfg.Documents.Provenance, builtin.LicensingProvenance)
	if err != nil {
		return nil, err
	}
	return provenance.Parse(data)
}
