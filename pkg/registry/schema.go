// pkg/registry/schema.go
package registry

// StageRegistry is the machine-readable catalog of pipeline stages and
// their Zeebe task bindings. Tooling and BPMN modelers read this file;
// the worker manager uses it to sanity-check task type names.
type StageRegistry struct {
	Version     string  `json:"version"`
	LastUpdated string  `json:"lastUpdated"`
	Stages      []Stage `json:"stages"`
}

type Stage struct {
	ID           string                 `json:"id"`
	DisplayName  string                 `json:"displayName"`
	Description  string                 `json:"description"`
	TaskType     string                 `json:"taskType"`
	Order        int                    `json:"order"`
	Concurrent   bool                   `json:"concurrent"`
	InputSchema  map[string]interface{} `json:"inputSchema"`
	OutputSchema map[string]interface{} `json:"outputSchema"`
	ErrorCodes   []string               `json:"errorCodes"`
	Timeout      string                 `json:"timeout"`
	Retries      int                    `json:"retries"`
	Tags         []string               `json:"tags"`
}
