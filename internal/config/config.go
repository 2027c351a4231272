// Package config manages the two configuration surfaces of a project: the
// aecos_project.json descriptor at the project root, and the optional
// aecos.yaml runtime settings file.
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/quobo-ops/aecos/internal/aecerr"
	"github.com/quobo-ops/aecos/internal/fsutil"
)

// ProjectFile is the project descriptor name.
const ProjectFile = "aecos_project.json"

// SettingsFile is the optional runtime settings name.
const SettingsFile = "aecos.yaml"

// Project is the aecos_project.json descriptor.
type Project struct {
	Name         string `json:"name"`
	Version      string `json:"version"`
	ElementsDir  string `json:"elements_dir"`
	TemplatesDir string `json:"templates_dir"`
}

// DefaultProject returns a descriptor with the standard layout.
func DefaultProject(name string) Project {
	if name == "" {
		name = "AEC OS Project"
	}
	return Project{
		Name:         name,
		Version:      "0.1.0",
		ElementsDir:  "elements",
		TemplatesDir: "templates",
	}
}

// LoadProject reads the descriptor from the project root, falling back to
// defaults when the file is absent.
func LoadProject(root string) (Project, error) {
	path := filepath.Join(root, ProjectFile)
	var p Project
	if err := fsutil.ReadJSON(path, &p); err != nil {
		if os.IsNotExist(err) {
			return DefaultProject(""), nil
		}
		return Project{}, aecerr.Wrap(aecerr.IO, path, "failed to read project config", err)
	}
	if p.ElementsDir == "" {
		p.ElementsDir = "elements"
	}
	if p.TemplatesDir == "" {
		p.TemplatesDir = "templates"
	}
	return p, nil
}

// SaveProject writes the descriptor atomically.
func SaveProject(root string, p Project) error {
	return fsutil.WriteJSONAtomic(filepath.Join(root, ProjectFile), p)
}

// LoggingSettings controls the logging package.
type LoggingSettings struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
}

// Settings is the aecos.yaml runtime configuration.
type Settings struct {
	AutoCommit bool            `yaml:"auto_commit"`
	User       string          `yaml:"user"`
	Region     string          `yaml:"region"`
	AuditDB    string          `yaml:"audit_db"`
	RuleDB     string          `yaml:"rule_db"`
	Logging    LoggingSettings `yaml:"logging"`
}

// DefaultSettings returns the runtime defaults. Databases live under the
// project-local .aecos directory.
func DefaultSettings() Settings {
	return Settings{
		AutoCommit: true,
		AuditDB:    filepath.Join(".aecos", "audit.db"),
		RuleDB:     filepath.Join(".aecos", "rules.db"),
		Logging:    LoggingSettings{Level: "info"},
	}
}

// LoadSettings reads aecos.yaml from the project root, layered over the
// defaults. AECOS_USER and AECOS_REGION environment variables override the
// file.
func LoadSettings(root string) (Settings, error) {
	s := DefaultSettings()

	path := filepath.Join(root, SettingsFile)
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &s); err != nil {
			return s, aecerr.Wrap(aecerr.InvalidArgument, path, "failed to parse settings", err)
		}
	} else if !os.IsNotExist(err) {
		return s, aecerr.Wrap(aecerr.IO, path, "failed to read settings", err)
	}

	if user := os.Getenv("AECOS_USER"); user != "" {
		s.User = user
	}
	if region := os.Getenv("AECOS_REGION"); region != "" {
		s.Region = region
	}
	return s, nil
}
