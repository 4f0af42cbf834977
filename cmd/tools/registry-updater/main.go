// cmd/tools/registry-updater/main.go
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/TheOneWithChair/LoanAIAgent-DigitalTwin/pkg/registry"
)

var registryPath string

func main() {
	addCmd := flag.NewFlagSet("add", flag.ExitOnError)
	updateCmd := flag.NewFlagSet("update", flag.ExitOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)

	// Add command flags
	idAdd := addCmd.String("id", "", "Stage ID (e.g., credit-scoring)")
	displayName := addCmd.String("displayName", "", "Display Name (e.g., Credit Scoring)")
	description := addCmd.String("description", "", "Description")
	taskType := addCmd.String("taskType", "", "Camunda Task Type (e.g., loan.credit-scoring)")
	order := addCmd.Int("order", 0, "Stage order within the pipeline")
	concurrent := addCmd.Bool("concurrent", false, "Whether the stage runs concurrently with its neighbor")

	// Update command flags
	idUpdate := updateCmd.String("id", "", "Stage ID to update")
	field := updateCmd.String("field", "", "Field to update (displayName, description, taskType, timeout, retries, order)")
	value := updateCmd.String("value", "", "New value for the field")

	// Validate command flags
	validateCmd.StringVar(&registryPath, "path", "configs/stage-registry.json", "Path to registry file")
	addCmd.StringVar(&registryPath, "path", "configs/stage-registry.json", "Path to registry file")
	updateCmd.StringVar(&registryPath, "path", "configs/stage-registry.json", "Path to registry file")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "add":
		addCmd.Parse(os.Args[2:])
		if *idAdd == "" || *displayName == "" || *taskType == "" {
			fmt.Println("Error: id, displayName, and taskType are required for add.")
			addCmd.Usage()
			os.Exit(1)
		}
		stage := registry.Stage{
			ID:           *idAdd,
			DisplayName:  *displayName,
			Description:  *description,
			TaskType:     *taskType,
			Order:        *order,
			Concurrent:   *concurrent,
			InputSchema:  map[string]interface{}{},
			OutputSchema: map[string]interface{}{},
			ErrorCodes:   []string{},
			Timeout:      "10s",
			Retries:      0,
			Tags:         []string{},
		}
		if err := addStage(&stage); err != nil {
			fmt.Printf("Error adding stage: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Added stage: %s\n", *idAdd)

	case "update":
		updateCmd.Parse(os.Args[2:])
		if *idUpdate == "" || *field == "" || *value == "" {
			fmt.Println("Error: id, field, and value are required for update.")
			updateCmd.Usage()
			os.Exit(1)
		}
		if err := updateStage(*idUpdate, *field, *value); err != nil {
			fmt.Printf("Error updating stage: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Updated stage %s, field %s to %s\n", *idUpdate, *field, *value)

	case "validate":
		validateCmd.Parse(os.Args[2:])
		if err := validateRegistry(); err != nil {
			fmt.Printf("Registry validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Registry validation passed.")

	case "help":
		fallthrough
	default:
		help()
	}
}

func addStage(stage *registry.Stage) error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		// If file doesn't exist, create new registry
		if os.IsNotExist(err) {
			reg = &registry.StageRegistry{
				Version:     "1.0.0",
				LastUpdated: time.Now().Format(time.RFC3339),
				Stages:      []registry.Stage{},
			}
		} else {
			return fmt.Errorf("failed to load registry: %w", err)
		}
	}

	for _, existing := range reg.Stages {
		if existing.ID == stage.ID {
			return fmt.Errorf("stage with ID %s already exists", stage.ID)
		}
	}

	reg.Stages = append(reg.Stages, *stage)
	reg.LastUpdated = time.Now().Format(time.RFC3339)

	return saveRegistry(reg, registryPath)
}

func updateStage(id, field, value string) error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	found := false
	for i := range reg.Stages {
		if reg.Stages[i].ID == id {
			found = true
			switch field {
			case "displayName":
				reg.Stages[i].DisplayName = value
			case "description":
				reg.Stages[i].Description = value
			case "taskType":
				reg.Stages[i].TaskType = value
			case "timeout":
				reg.Stages[i].Timeout = value
			case "retries":
				retries, err := strconv.Atoi(value)
				if err != nil {
					return fmt.Errorf("invalid retries value: %w", err)
				}
				reg.Stages[i].Retries = retries
			case "order":
				order, err := strconv.Atoi(value)
				if err != nil {
					return fmt.Errorf("invalid order value: %w", err)
				}
				reg.Stages[i].Order = order
			default:
				return fmt.Errorf("unknown field: %s", field)
			}
			break
		}
	}

	if !found {
		return fmt.Errorf("stage with ID %s not found", id)
	}

	reg.LastUpdated = time.Now().Format(time.RFC3339)
	return saveRegistry(reg, registryPath)
}

func validateRegistry() error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	if len(reg.Stages) == 0 {
		return fmt.Errorf("registry contains no stages")
	}

	ids := make(map[string]bool)
	taskTypes := make(map[string]bool)
	for _, stage := range reg.Stages {
		if stage.ID == "" {
			return fmt.Errorf("stage missing required field: ID")
		}
		if ids[stage.ID] {
			return fmt.Errorf("duplicate stage ID: %s", stage.ID)
		}
		ids[stage.ID] = true

		if stage.DisplayName == "" {
			return fmt.Errorf("stage %s missing required field: DisplayName", stage.ID)
		}
		if stage.TaskType == "" {
			return fmt.Errorf("stage %s missing required field: TaskType", stage.ID)
		}
		if !strings.HasPrefix(stage.TaskType, "loan.") {
			return fmt.Errorf("stage %s task type %q must use the loan. prefix", stage.ID, stage.TaskType)
		}
		if taskTypes[stage.TaskType] {
			return fmt.Errorf("duplicate task type: %s", stage.TaskType)
		}
		taskTypes[stage.TaskType] = true
	}

	fmt.Printf("Registry validation passed. Found %d stages.\n", len(reg.Stages))
	return nil
}

// saveRegistry handles saving the registry to file
func saveRegistry(reg *registry.StageRegistry, path string) error {
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write registry file: %w", err)
	}

	return nil
}

func help() {
	fmt.Print(`
Usage: registry-updater <command> [flags]

Commands:
  add      Add a new stage to the registry
  update   Update an existing stage's field
  validate Validate the registry file
  help     Show this help message

Examples:
  registry-updater add -id credit-scoring -displayName "Credit Scoring" -description "Derives a credit score from the application record" -taskType loan.credit-scoring -order 1
  registry-updater update -id credit-scoring -field timeout -value 30s
  registry-updater validate -path configs/stage-registry.json
`)
}
