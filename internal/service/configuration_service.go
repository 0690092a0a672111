// internal/service/configuration_service.go
package service

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"gnss-configurator/internal/model"
	"gnss-configurator/internal/schema"
	"gnss-configurator/internal/utils"
)

// RecordKey names the configuration entry key selecting the target record
const RecordKey = "record"

// ErrMalformedConfiguration marks a configuration document that cannot be parsed
var ErrMalformedConfiguration = errors.New("malformed configuration")

// LoadResult is the outcome of applying a configuration document to the schema
type LoadResult struct {
	Records     []*model.Record    `json:"records"`
	Diagnostics []model.Diagnostic `json:"diagnostics,omitempty"`
	Accepted    bool               `json:"accepted"`
}

// RecordNames returns the names of the accepted records in order
func (r *LoadResult) RecordNames() []string {
	names := make([]string, 0, len(r.Records))
	for _, rec := range r.Records {
		names = append(names, rec.Name)
	}
	return names
}

// ConfigurationService fills record templates from user configuration
type ConfigurationService struct {
	schema *schema.Schema
	logger *utils.ServiceLogger
}

// NewConfigurationService creates a new configuration service instance
func NewConfigurationService(s *schema.Schema, logger *zap.Logger) *ConfigurationService {
	return &ConfigurationService{
		schema: s,
		logger: utils.NewServiceLogger(logger, "configuration-service"),
	}
}

// Schema returns the schema records are resolved against
func (cs *ConfigurationService) Schema() *schema.Schema {
	return cs.schema
}

// LoadFile applies a configuration file
func (cs *ConfigurationService) LoadFile(path string) (*LoadResult, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open configuration file: %w", err)
	}
	defer f.Close()

	return cs.Load(f)
}

// Load applies a YAML list of {record: NAME, FIELD: value, ...} entries.
// Rejected entries and values are reported as diagnostics; only a document
// that cannot be parsed returns an error.
func (cs *ConfigurationService) Load(r io.Reader) (*LoadResult, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrMalformedConfiguration)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedConfiguration, err)
	}

	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) == 1 {
		root = root.Content[0]
	}
	if root.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("%w: expected a list of entries at line %d", ErrMalformedConfiguration, root.Line)
	}

	result := &LoadResult{}
	for i, entry := range root.Content {
		rec, diags := cs.applyEntry(i, entry)
		result.Diagnostics = append(result.Diagnostics, diags...)
		if rec != nil {
			result.Records = append(result.Records, rec)
		}
	}
	result.Accepted = len(result.Records) > 0

	for _, d := range result.Diagnostics {
		cs.logger.Debug("Configuration diagnostic", zap.Stringer("diagnostic", d))
	}
	cs.logger.Info("Configuration loaded",
		zap.Int("entries", len(root.Content)),
		zap.Strings("records", result.RecordNames()),
		zap.Int("diagnostics", len(result.Diagnostics)),
	)

	return result, nil
}

// applyEntry clones the named record and assigns every item of the entry.
// The record is returned only when it was touched and passes the sanity check.
func (cs *ConfigurationService) applyEntry(index int, entry *yaml.Node) (*model.Record, []model.Diagnostic) {
	label := fmt.Sprintf("#%d", index)

	if entry.Kind != yaml.MappingNode {
		return nil, []model.Diagnostic{{
			Kind:   model.DiagnosticMalformedEntry,
			Record: label,
			Reason: fmt.Sprintf("entry at line %d is not a mapping", entry.Line),
		}}
	}

	name, ok := recordName(entry)
	if !ok {
		return nil, []model.Diagnostic{{
			Kind:   model.DiagnosticMalformedEntry,
			Record: label,
			Reason: fmt.Sprintf("entry at line %d has no %q key", entry.Line, RecordKey),
		}}
	}

	rec, ok := cs.schema.GetByName(name)
	if !ok {
		return nil, []model.Diagnostic{{
			Kind:   model.DiagnosticUnknownRecord,
			Record: name,
			Reason: "wrong record name",
		}}
	}

	var diags []model.Diagnostic
	touched := false

	for i := 0; i+1 < len(entry.Content); i += 2 {
		key, valueNode := entry.Content[i].Value, entry.Content[i+1]
		if key == RecordKey {
			continue
		}

		var value any
		if err := valueNode.Decode(&value); err != nil {
			diags = append(diags, model.Diagnostic{
				Kind:   model.DiagnosticInvalidValue,
				Record: name,
				Field:  key,
				Reason: fmt.Sprintf("undecodable value: %v", err),
				Err:    err,
			})
			continue
		}

		field, ok := rec.FieldByName(key)
		if !ok {
			diags = append(diags, model.Diagnostic{
				Kind:   model.DiagnosticUnknownField,
				Record: name,
				Field:  key,
				Value:  value,
				Reason: "wrong item name",
			})
			continue
		}

		if err := field.Assign(value); err != nil {
			diags = append(diags, model.Diagnostic{
				Kind:   model.DiagnosticInvalidValue,
				Record: name,
				Field:  key,
				Value:  value,
				Reason: assignReason(err),
				Err:    err,
			})
			continue
		}
		touched = true
	}

	if !touched {
		diags = append(diags, model.Diagnostic{
			Kind:   model.DiagnosticNotConfigured,
			Record: name,
			Reason: "no item assigned",
		})
		return nil, diags
	}

	if missing := rec.MissingMandatory(); len(missing) > 0 {
		diags = append(diags, model.Diagnostic{
			Kind:   model.DiagnosticSanityFailed,
			Record: name,
			Reason: "sanity check failed: missing mandatory " + strings.Join(missing, ", "),
		})
		return nil, diags
	}

	return rec, diags
}

func recordName(entry *yaml.Node) (string, bool) {
	for i := 0; i+1 < len(entry.Content); i += 2 {
		if entry.Content[i].Value != RecordKey {
			continue
		}
		v := entry.Content[i+1]
		if v.Kind != yaml.ScalarNode || v.Value == "" {
			return "", false
		}
		return v.Value, true
	}
	return "", false
}

func assignReason(err error) string {
	var verr *model.ValidationError
	if errors.As(err, &verr) {
		return fmt.Sprintf("%v: %s", verr.Err, verr.Reason)
	}
	return err.Error()
}
