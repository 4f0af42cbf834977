// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"
)

func LoadRegistry(path string) (*StageRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg StageRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parse stage registry %s: %w", path, err)
	}
	return &reg, nil
}

// StageByTaskType looks up a stage descriptor by its Zeebe task type.
func (r *StageRegistry) StageByTaskType(taskType string) *Stage {
	for i := range r.Stages {
		if r.Stages[i].TaskType == taskType {
			return &r.Stages[i]
		}
	}
	return nil
}

// TaskTypes lists every registered task type in pipeline order.
func (r *StageRegistry) TaskTypes() []string {
	types := make([]string, 0, len(r.Stages))
	for _, s := range r.Stages {
		types = append(types, s.TaskType)
	}
	return types
}
