package trigger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"polyedge/internal/logger"
)

// triggerSchema validates declarative trigger definitions before they
// reach the registry. Unknown operators or action types fail the load.
const triggerSchema = `{
  "type": "object",
  "required": ["name"],
  "properties": {
    "id": {"type": "string"},
    "name": {"type": "string", "minLength": 1},
    "description": {"type": "string"},
    "enabled": {"type": "boolean"},
    "categories": {"type": "array", "items": {"type": "string"}},
    "sources": {"type": "array", "items": {"type": "string"}},
    "min_severity": {"enum": ["info", "low", "medium", "high", "critical"]},
    "condition_type": {"enum": ["all", "any"]},
    "cooldown_seconds": {"type": "integer", "minimum": 0},
    "market_ids": {"type": "array", "items": {"type": "string"}},
    "outcome_ids": {"type": "array", "items": {"type": "string"}},
    "tags": {"type": "array", "items": {"type": "string"}},
    "conditions": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["field", "operator", "value"],
        "properties": {
          "field": {"type": "string", "minLength": 1},
          "operator": {"enum": ["eq", "ne", "gt", "gte", "lt", "lte", "contains", "in"]}
        }
      }
    },
    "actions": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["type"],
        "properties": {
          "type": {"enum": ["notify", "alert", "trade", "log", "pause_trading", "resume_trading"]},
          "params": {"type": "object"}
        }
      }
    }
  }
}`

type fileConfig struct {
	Triggers []Trigger `yaml:"triggers"`
}

type rawFileConfig struct {
	Triggers []map[string]any `yaml:"triggers"`
}

// Loader reads trigger definitions from a YAML file into the registry
// and hot-reloads on file change. The registry swap is atomic; a bad
// file leaves the previous definitions in place.
type Loader struct {
	path     string
	registry *Registry
	schema   *jsonschema.Schema
	v        *viper.Viper
}

func NewLoader(path string, registry *Registry) (*Loader, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("trigger loader requires path")
	}
	schema, err := compileTriggerSchema()
	if err != nil {
		return nil, err
	}
	l := &Loader{path: path, registry: registry, schema: schema}
	if err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// Watch starts hot-reloading on file changes.
func (l *Loader) Watch() error {
	v := viper.New()
	v.SetConfigFile(l.path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("watch trigger file failed: %w", err)
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := l.Reload(); err != nil {
			logger.Errorf("trigger reload failed: %v", err)
		}
	})
	v.WatchConfig()
	l.v = v
	return nil
}

// Reload parses, validates and swaps the definition set.
func (l *Loader) Reload() error {
	raw, err := os.ReadFile(l.path)
	if err != nil {
		return fmt.Errorf("read trigger file failed: %w", err)
	}

	var rawCfg rawFileConfig
	if err := yaml.Unmarshal(raw, &rawCfg); err != nil {
		return fmt.Errorf("parse trigger file failed: %w", err)
	}
	for i, def := range rawCfg.Triggers {
		if err := l.validateDefinition(def); err != nil {
			return fmt.Errorf("trigger %d in %s: %w", i, filepath.Base(l.path), err)
		}
	}

	var cfg fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&cfg); err != nil {
		return fmt.Errorf("decode trigger file failed: %w", err)
	}
	for i := range cfg.Triggers {
		if cfg.Triggers[i].ID == "" && cfg.Triggers[i].Name != "" {
			// File-defined triggers keep a stable id across reloads so
			// cooldown state survives.
			cfg.Triggers[i].ID = "file:" + cfg.Triggers[i].Name
		}
		if !definitionSetsEnabled(rawCfg.Triggers, i) {
			cfg.Triggers[i].Enabled = true
		}
	}

	if err := l.registry.ReplaceAll(cfg.Triggers); err != nil {
		return err
	}
	logger.Infof("trigger loader: loaded %d triggers from %s", len(cfg.Triggers), filepath.Base(l.path))
	return nil
}

func (l *Loader) validateDefinition(def map[string]any) error {
	encoded, err := json.Marshal(def)
	if err != nil {
		return err
	}
	var normalized any
	if err := json.Unmarshal(encoded, &normalized); err != nil {
		return err
	}
	return l.schema.Validate(normalized)
}

func definitionSetsEnabled(raw []map[string]any, i int) bool {
	if i >= len(raw) {
		return false
	}
	_, ok := raw[i]["enabled"]
	return ok
}

func compileTriggerSchema() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("trigger.json", strings.NewReader(triggerSchema)); err != nil {
		return nil, err
	}
	return compiler.Compile("trigger.json")
}
