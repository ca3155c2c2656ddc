package scheduler

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/calder-ai/steward/internal/types"
)

// catalogFile is the on-disk shape of a pipeline catalog.
type catalogFile struct {
	Pipelines []Pipeline `yaml:"pipelines"`
}

// LoadCatalog reads a YAML pipeline catalog and returns the pipelines it
// defines. Example:
//
//	pipelines:
//	  - name: monitoring
//	    mode: parallel
//	    stages:
//	      - component_id: runtime-probe
//	        critical: false
func LoadCatalog(path string) ([]*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.WrapError(types.PIPELINE_INVALID,
			fmt.Sprintf("failed to read pipeline catalog %s", path), err)
	}
	return ParseCatalog(data)
}

// ParseCatalog parses a YAML pipeline catalog from memory.
func ParseCatalog(data []byte) ([]*Pipeline, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, types.WrapError(types.PIPELINE_INVALID,
			"failed to parse pipeline catalog", err)
	}

	pipelines := make([]*Pipeline, 0, len(file.Pipelines))
	for i := range file.Pipelines {
		p := file.Pipelines[i]
		if p.Name == "" {
			return nil, types.NewError(types.PIPELINE_INVALID,
				fmt.Sprintf("pipeline %d has no name", i))
		}
		if p.Mode == "" {
			p.Mode = ModeSequential
		}
		if p.Mode != ModeSequential && p.Mode != ModeParallel {
			return nil, types.NewError(types.PIPELINE_INVALID,
				fmt.Sprintf("pipeline %s has invalid mode %q", p.Name, p.Mode))
		}
		if len(p.Stages) == 0 {
			return nil, types.NewError(types.PIPELINE_INVALID,
				fmt.Sprintf("pipeline %s has no stages", p.Name))
		}
		for j, stage := range p.Stages {
			if stage.ComponentID == "" {
				return nil, types.NewError(types.PIPELINE_INVALID,
					fmt.Sprintf("pipeline %s stage %d has no component_id", p.Name, j))
			}
		}
		pipelines = append(pipelines, &p)
	}

	return pipelines, nil
}
