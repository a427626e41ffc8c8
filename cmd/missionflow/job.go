package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"missionflow/internal/prompt"
)

// Job is a pipeline request read from a YAML file.
//
//	name: bistro-launch
//	mission: Fill the terrace for the summer season
//	agents: [strategist, writer, publisher]
//	config:
//	  business_profile:
//	    name: Le Petit Bistro
type Job struct {
	Name    string                 `yaml:"name"`
	Mission string                 `yaml:"mission"`
	Agents  []string               `yaml:"agents"`
	Config  prompt.ExecutionConfig `yaml:"config"`
}

var errNoAgents = errors.New("job lists no agents")

func parseJob(data []byte) (*Job, error) {
	var job Job
	if err := yaml.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to parse job: %w", err)
	}
	agents := job.Agents[:0]
	for _, a := range job.Agents {
		if a = strings.TrimSpace(a); a != "" {
			agents = append(agents, a)
		}
	}
	job.Agents = agents
	if len(job.Agents) == 0 {
		return nil, errNoAgents
	}
	return &job, nil
}

func loadJob(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read job: %w", err)
	}
	job, err := parseJob(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if job.Name == "" {
		job.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return job, nil
}

func splitAgents(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func isJobFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
