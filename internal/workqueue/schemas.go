package workqueue

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// schemaSet holds compiled payload schemas keyed by task type. A nil set
// validates nothing, which is the default when no schema directory is
// configured.
type schemaSet struct {
	compiled map[string]*jsonschema.Schema
}

// loadSchemas compiles every <task_type>.json file in dir. Schemas apply to
// the task type matching the file's base name.
func loadSchemas(dir string) (*schemaSet, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read payload schema dir: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read payload schema %s: %w", entry.Name(), err)
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("parse payload schema %s: %w", entry.Name(), err)
		}
		if err := compiler.AddResource(entry.Name(), doc); err != nil {
			return nil, fmt.Errorf("register payload schema %s: %w", entry.Name(), err)
		}
		names = append(names, entry.Name())
	}

	set := &schemaSet{compiled: make(map[string]*jsonschema.Schema, len(names))}
	for _, name := range names {
		schema, err := compiler.Compile(name)
		if err != nil {
			return nil, fmt.Errorf("compile payload schema %s: %w", name, err)
		}
		set.compiled[strings.TrimSuffix(name, ".json")] = schema
	}
	return set, nil
}

// validate checks a payload against the schema registered for taskType, if
// any. Validation failures are enqueue validation errors; they are never
// retried.
func (s *schemaSet) validate(taskType string, payload map[string]any) error {
	if s == nil {
		return nil
	}
	schema, ok := s.compiled[taskType]
	if !ok {
		return nil
	}

	if payload == nil {
		payload = map[string]any{}
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload for validation: %w", err)
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("decode payload for validation: %w", err)
	}
	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("payload for task_type %q: %w", taskType, err)
	}
	return nil
}
