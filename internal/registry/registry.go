// Package registry provides the dataset registry: a declarative description
// of each logical dataset's source filename pattern, staging table, natural
// key, and typed column schema. Definitions are loaded once from a YAML
// document at startup and are read-only for the rest of the pipeline.
package registry

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"
)

// ColumnType enumerates the primitive types a staged column may declare.
type ColumnType string

const (
	TypeString  ColumnType = "string"
	TypeDate    ColumnType = "date"
	TypeNumeric ColumnType = "numeric"
	TypeInt     ColumnType = "int"
)

// ConflictPolicy controls what happens when a loaded row's natural-key
// tuple collides with an already staged row.
type ConflictPolicy string

const (
	// ConflictOverwrite replaces the non-key columns of the existing row.
	ConflictOverwrite ConflictPolicy = "overwrite"
	// ConflictIgnore keeps the existing row and discards the new one.
	ConflictIgnore ConflictPolicy = "ignore"
	// ConflictReject fails the load when a collision is detected.
	ConflictReject ConflictPolicy = "reject"
)

// Column is one declared column of a staging table.
type Column struct {
	Name     string
	Type     ColumnType
	Nullable bool
}

// Dataset describes one logical dataset. Columns preserve declaration order
// so the staging table DDL is deterministic across runs.
type Dataset struct {
	Name            string
	FilenamePattern string
	StagingTable    string
	NaturalKey      []string
	Columns         []Column
	OnConflict      ConflictPolicy
}

// Column returns the declared column with the given name.
func (d *Dataset) Column(name string) (Column, bool) {
	for _, c := range d.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// IsKeyColumn reports whether name is part of the natural key.
func (d *Dataset) IsKeyColumn(name string) bool {
	for _, k := range d.NaturalKey {
		if k == name {
			return true
		}
	}
	return false
}

// MatchesFile reports whether the base name of path conforms to the
// dataset's filename pattern. Matching is on the base name only, so
// directory components never influence the result.
func (d *Dataset) MatchesFile(path string) bool {
	ok, err := filepath.Match(d.FilenamePattern, filepath.Base(path))
	return err == nil && ok
}

// ConfigError reports an invalid dataset definition. It is detected at
// startup and is fatal for the whole run.
type ConfigError struct {
	Dataset string
	Detail  string
}

func (e *ConfigError) Error() string {
	if e.Dataset == "" {
		return fmt.Sprintf("invalid dataset configuration: %s", e.Detail)
	}
	return fmt.Sprintf("invalid dataset %q: %s", e.Dataset, e.Detail)
}

// Registry holds all validated dataset definitions.
type Registry struct {
	datasets map[string]*Dataset
	names    []string
}

// Get returns the definition for a dataset name.
func (r *Registry) Get(name string) (*Dataset, error) {
	d, ok := r.datasets[name]
	if !ok {
		return nil, fmt.Errorf("unknown dataset %q (known: %v)", name, r.names)
	}
	return d, nil
}

// Names returns all dataset names in sorted order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// All returns all dataset definitions in name order.
func (r *Registry) All() []*Dataset {
	out := make([]*Dataset, 0, len(r.names))
	for _, n := range r.names {
		out = append(out, r.datasets[n])
	}
	return out
}

// Len returns the number of registered datasets.
func (r *Registry) Len() int { return len(r.names) }

// --- YAML document shape ---

type fileSpec struct {
	Datasets map[string]datasetSpec `yaml:"datasets"`
}

type datasetSpec struct {
	FilenamePattern string    `yaml:"filename_pattern"`
	StagingTable    string    `yaml:"staging_table"`
	NaturalKey      []string  `yaml:"natural_key"`
	OnConflict      string    `yaml:"on_conflict"`
	Columns         yaml.Node `yaml:"columns"`
}

type columnSpec struct {
	Type     string `yaml:"type"`
	Nullable bool   `yaml:"nullable"`
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Load reads and validates the dataset registry from a YAML file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset registry %s: %w", path, err)
	}
	reg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return reg, nil
}

// Parse parses and validates a registry document.
func Parse(data []byte) (*Registry, error) {
	var spec fileSpec
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return nil, &ConfigError{Detail: fmt.Sprintf("yaml parse error: %v", err)}
	}
	if len(spec.Datasets) == 0 {
		return nil, &ConfigError{Detail: "no datasets declared"}
	}

	reg := &Registry{datasets: make(map[string]*Dataset, len(spec.Datasets))}
	for name := range spec.Datasets {
		reg.names = append(reg.names, name)
	}
	sort.Strings(reg.names)

	for _, name := range reg.names {
		ds, err := buildDataset(name, spec.Datasets[name])
		if err != nil {
			return nil, err
		}
		reg.datasets[name] = ds
	}
	return reg, nil
}

func buildDataset(name string, spec datasetSpec) (*Dataset, error) {
	if spec.FilenamePattern == "" {
		return nil, &ConfigError{Dataset: name, Detail: "filename_pattern is empty"}
	}
	// filepath.Match rejects malformed patterns (e.g. unterminated ranges)
	// regardless of the candidate name.
	if _, err := filepath.Match(spec.FilenamePattern, "probe.csv"); err != nil {
		return nil, &ConfigError{Dataset: name, Detail: fmt.Sprintf("malformed filename_pattern %q: %v", spec.FilenamePattern, err)}
	}
	if spec.StagingTable == "" {
		return nil, &ConfigError{Dataset: name, Detail: "staging_table is empty"}
	}
	if !identRe.MatchString(spec.StagingTable) {
		return nil, &ConfigError{Dataset: name, Detail: fmt.Sprintf("staging_table %q is not a valid identifier", spec.StagingTable)}
	}

	cols, err := decodeColumns(name, spec.Columns)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, &ConfigError{Dataset: name, Detail: "no columns declared"}
	}

	ds := &Dataset{
		Name:            name,
		FilenamePattern: spec.FilenamePattern,
		StagingTable:    spec.StagingTable,
		NaturalKey:      spec.NaturalKey,
		Columns:         cols,
		OnConflict:      ConflictOverwrite,
	}

	if spec.OnConflict != "" {
		switch p := ConflictPolicy(spec.OnConflict); p {
		case ConflictOverwrite, ConflictIgnore, ConflictReject:
			ds.OnConflict = p
		default:
			return nil, &ConfigError{Dataset: name, Detail: fmt.Sprintf("unknown on_conflict policy %q", spec.OnConflict)}
		}
	}

	if len(ds.NaturalKey) == 0 {
		return nil, &ConfigError{Dataset: name, Detail: "natural_key is empty"}
	}
	for _, key := range ds.NaturalKey {
		col, ok := ds.Column(key)
		if !ok {
			return nil, &ConfigError{Dataset: name, Detail: fmt.Sprintf("natural_key column %q is not declared", key)}
		}
		if col.Nullable {
			return nil, &ConfigError{Dataset: name, Detail: fmt.Sprintf("natural_key column %q must not be nullable", key)}
		}
	}
	return ds, nil
}

// decodeColumns walks the YAML mapping node directly so declaration order
// survives; decoding into a Go map would lose it.
func decodeColumns(dataset string, node yaml.Node) ([]Column, error) {
	if node.Kind == 0 {
		return nil, &ConfigError{Dataset: dataset, Detail: "no columns declared"}
	}
	if node.Kind != yaml.MappingNode {
		return nil, &ConfigError{Dataset: dataset, Detail: "columns must be a mapping"}
	}

	seen := make(map[string]bool)
	cols := make([]Column, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valNode := node.Content[i], node.Content[i+1]

		colName := keyNode.Value
		if !identRe.MatchString(colName) {
			return nil, &ConfigError{Dataset: dataset, Detail: fmt.Sprintf("column %q is not a valid identifier", colName)}
		}
		if seen[colName] {
			return nil, &ConfigError{Dataset: dataset, Detail: fmt.Sprintf("column %q declared twice", colName)}
		}
		seen[colName] = true

		var cs columnSpec
		if err := valNode.Decode(&cs); err != nil {
			return nil, &ConfigError{Dataset: dataset, Detail: fmt.Sprintf("column %q: %v", colName, err)}
		}

		ct := ColumnType(cs.Type)
		switch ct {
		case TypeString, TypeDate, TypeNumeric, TypeInt:
		default:
			return nil, &ConfigError{Dataset: dataset, Detail: fmt.Sprintf("column %q has unrecognized type %q", colName, cs.Type)}
		}

		cols = append(cols, Column{Name: colName, Type: ct, Nullable: cs.Nullable})
	}
	return cols, nil
}
