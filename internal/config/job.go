package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Job is a streaming job file
type Job struct {
	Connection  Config      `yaml:"connection"`
	Source      Source      `yaml:"source"`
	Destination Destination `yaml:"destination"`
	State       State       `yaml:"state"`
}

// Source describes the delimited file to stream
type Source struct {
	Path              string `yaml:"path"`
	Separator         string `yaml:"separator"`
	BatchSize         int    `yaml:"batch_size"`
	InferSchemaLength int    `yaml:"infer_schema_length"`
	SkipRows          int64  `yaml:"skip_rows"`
	Strategy          string `yaml:"strategy"`
}

// Destination names the target table and its write options
type Destination struct {
	Table   string            `yaml:"table"`
	Options map[string]string `yaml:"options"`
}

// State selects where job progress is recorded
type State struct {
	Type      string `yaml:"type"`
	Dir       string `yaml:"dir"`
	Namespace string `yaml:"namespace"`
	JobID     string `yaml:"job_id"`
}

// LoadJob reads a YAML job file and fills connection fields from the environment
func LoadJob(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read job file: %w", err)
	}
	return ParseJob(data)
}

// ParseJob decodes a YAML job document. Unknown keys are rejected.
func ParseJob(data []byte) (*Job, error) {
	var job Job
	if err := yaml.UnmarshalStrict(data, &job); err != nil {
		return nil, fmt.Errorf("failed to parse job file: %w", err)
	}
	if job.Source.Path == "" {
		return nil, fmt.Errorf("job file is missing source.path")
	}
	if job.Destination.Table == "" {
		return nil, fmt.Errorf("job file is missing destination.table")
	}
	if job.State.Type == "" {
		job.State.Type = "memory"
	}
	FromEnv(&job.Connection)
	return &job, nil
}
