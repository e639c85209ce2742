// cmd/tools/registry-updater/main.go
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/max-tl-2000/red-sub014/pkg/registry"
)

var registryPath string

func main() {
	addCmd := flag.NewFlagSet("add", flag.ExitOnError)
	updateCmd := flag.NewFlagSet("update", flag.ExitOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)

	// Add command flags
	idAdd := addCmd.String("id", "", "Topic ID (e.g., quote-published)")
	displayName := addCmd.String("displayName", "", "Display Name (e.g., Quote Published)")
	description := addCmd.String("description", "", "Description")
	category := addCmd.String("category", "", "Category (trigger, response, recovery, lifecycle)")
	topic := addCmd.String("topic", "", "Queue topic (e.g., screening.quote-published)")
	timeout := addCmd.String("timeout", "30s", "Handler timeout")
	addCmd.StringVar(&registryPath, "path", "configs/topics.json", "Path to registry file")

	// Update command flags
	idUpdate := updateCmd.String("id", "", "Topic ID to update")
	field := updateCmd.String("field", "", "Field to update (enabled, timeout, maxJobsActive, ...)")
	value := updateCmd.String("value", "", "New value for the field")
	updateCmd.StringVar(&registryPath, "path", "configs/topics.json", "Path to registry file")

	// Validate command flags
	validateCmd.StringVar(&registryPath, "path", "configs/topics.json", "Path to registry file")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "add":
		addCmd.Parse(os.Args[2:])
		if *idAdd == "" || *displayName == "" || *description == "" || *category == "" || *topic == "" {
			fmt.Println("Error: id, displayName, description, category, and topic are required for add.")
			addCmd.Usage()
			os.Exit(1)
		}
		entry := registry.Topic{
			ID:            *idAdd,
			DisplayName:   *displayName,
			Description:   *description,
			Category:      *category,
			Topic:         *topic,
			Enabled:       true,
			InputSchema:   map[string]interface{}{},
			ErrorCodes:    []string{},
			Timeout:       *timeout,
			MaxJobsActive: 4,
		}
		if err := addTopic(&entry); err != nil {
			fmt.Printf("Error adding topic: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Added topic: %s\n", *idAdd)

	case "update":
		updateCmd.Parse(os.Args[2:])
		if *idUpdate == "" || *field == "" || *value == "" {
			fmt.Println("Error: id, field, and value are required for update.")
			updateCmd.Usage()
			os.Exit(1)
		}
		if err := updateTopic(*idUpdate, *field, *value); err != nil {
			fmt.Printf("Error updating topic: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Updated topic %s, field %s to %s\n", *idUpdate, *field, *value)

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

func addTopic(entry *registry.Topic) error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		// If file doesn't exist, create new registry
		if os.IsNotExist(err) {
			reg = &registry.TopicRegistry{
				Version:     "1.0.0",
				LastUpdated: time.Now().Format(time.RFC3339),
				Topics:      []registry.Topic{},
			}
		} else {
			return fmt.Errorf("failed to load registry: %w", err)
		}
	}

	for _, existing := range reg.Topics {
		if existing.ID == entry.ID {
			return fmt.Errorf("topic with ID %s already exists", entry.ID)
		}
		if existing.Topic == entry.Topic {
			return fmt.Errorf("topic name %s already registered as %s", entry.Topic, existing.ID)
		}
	}

	reg.Topics = append(reg.Topics, *entry)

	if err := os.MkdirAll(filepath.Dir(registryPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return registry.SaveRegistry(registryPath, reg)
}

func updateTopic(id, field, value string) error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	found := false
	for i := range reg.Topics {
		if reg.Topics[i].ID != id {
			continue
		}
		found = true
		switch field {
		case "enabled":
			enabled, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("invalid enabled value: %w", err)
			}
			reg.Topics[i].Enabled = enabled
		case "displayName":
			reg.Topics[i].DisplayName = value
		case "description":
			reg.Topics[i].Description = value
		case "category":
			reg.Topics[i].Category = value
		case "topic":
			reg.Topics[i].Topic = value
		case "timeout":
			reg.Topics[i].Timeout = value
		case "maxJobsActive":
			n, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("invalid maxJobsActive value: %w", err)
			}
			reg.Topics[i].MaxJobsActive = n
		default:
			return fmt.Errorf("unknown field: %s", field)
		}
		break
	}

	if !found {
		return fmt.Errorf("topic with ID %s not found", id)
	}
	return registry.SaveRegistry(registryPath, reg)
}

func validateRegistry() error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	if len(reg.Topics) == 0 {
		return fmt.Errorf("registry contains no topics")
	}

	ids := make(map[string]bool)
	names := make(map[string]bool)
	for _, entry := range reg.Topics {
		if entry.ID == "" {
			return fmt.Errorf("topic missing required field: ID")
		}
		if ids[entry.ID] {
			return fmt.Errorf("duplicate topic ID: %s", entry.ID)
		}
		ids[entry.ID] = true

		if names[entry.Topic] {
			return fmt.Errorf("duplicate topic name: %s", entry.Topic)
		}
		names[entry.Topic] = true

		if entry.DisplayName == "" {
			return fmt.Errorf("topic %s missing required field: DisplayName", entry.ID)
		}
		if entry.Category == "" {
			return fmt.Errorf("topic %s missing required field: Category", entry.ID)
		}
	}

	fmt.Printf("Registry validation passed. Found %d topics.\n", len(reg.Topics))
	return nil
}

func help() {
	fmt.Print(`
Usage: registry-updater <command> [flags]

Commands:
  add      Add a new topic to the registry
  update   Update an existing topic's field
  validate Validate the registry file
  help     Show this help message

Examples:
  registry-updater add -id quote-published -displayName "Quote Published" -description "Submit a screening request on quote publish" -category trigger -topic screening.quote-published
  registry-updater update -id quote-published -field enabled -value false
  registry-updater validate -path configs/topics.json

Use 'registry-updater <command> -h' for more information about a command.

`)
}
