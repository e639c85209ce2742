// cmd/tools/worker-generator/main.go
//
// Scaffolds a screening worker package from a topic registry entry. The
// generated handler compiles but returns a not-implemented error until the
// execute body is filled in.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/max-tl-2000/red-sub014/pkg/registry"
)

type workerData struct {
	Name        string
	PackageName string
	Topic       string
	Description string
	Fields      string
}

// goTypeFromJSONType maps JSON schema types to Go types
func goTypeFromJSONType(jsonType interface{}) string {
	if jt, ok := jsonType.(string); ok {
		switch jt {
		case "string":
			return "string"
		case "number":
			return "float64"
		case "integer":
			return "int"
		case "boolean":
			return "bool"
		case "object":
			return "map[string]interface{}"
		case "array":
			return "[]interface{}"
		}
	}
	return "interface{}"
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// structFields renders Input struct fields from the topic's input schema.
func structFields(schema map[string]interface{}) string {
	props, ok := schema["properties"].(map[string]interface{})
	if !ok {
		return "\tTenantID string `json:\"tenantId\"`"
	}
	var fields []string
	for prop, details := range props {
		propDetails, ok := details.(map[string]interface{})
		if !ok {
			continue
		}
		goType := goTypeFromJSONType(propDetails["type"])
		fields = append(fields, fmt.Sprintf("\t%s %s `json:\"%s\"`", upperFirst(prop), goType, prop))
	}
	return strings.Join(fields, "\n")
}

const configTemplate = `// internal/workers/screening/{{ .Name }}/config.go
package {{ .PackageName }}

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 30 * time.Second,
	}
}
`

const modelsTemplate = `// internal/workers/screening/{{ .Name }}/models.go
package {{ .PackageName }}

type Input struct {
{{ .Fields }}
}

type Output struct {
	Processed bool ` + "`json:\"processed\"`" + `
}
`

const handlerTemplate = `// internal/workers/screening/{{ .Name }}/handler.go
package {{ .PackageName }}

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"github.com/max-tl-2000/red-sub014/internal/common/errors"
	"github.com/max-tl-2000/red-sub014/internal/common/logger"
)

// {{ .Description }}
const TaskType = "{{ .Topic }}"

type Handler struct {
	cfg        *Config
	errHandler *errors.ErrorHandler
	logger     logger.Logger
}

func NewHandler(cfg *Config, log logger.Logger) *Handler {
	return &Handler{
		cfg:        cfg,
		errHandler: errors.NewErrorHandler(log),
		logger:     log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.errHandler.HandleJobError(context.Background(), client, job,
			errors.NewValidationError(errors.ErrCodeInvalidMessage, err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.Timeout)
	defer cancel()

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.errHandler.HandleJobError(context.Background(), client, job, err)
		return
	}

	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	if _, err = cmd.Send(context.Background()); err != nil {
		h.logger.Error("failed to complete job", map[string]interface{}{
			"error": err,
		})
	}
}

func (h *Handler) execute(_ context.Context, _ *Input) (*Output, error) {
	return nil, fmt.Errorf("{{ .Topic }}: not implemented")
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
`

const testTemplate = `// internal/workers/screening/{{ .Name }}/handler_test.go
package {{ .PackageName }}

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/max-tl-2000/red-sub014/internal/common/logger"
)

func TestExecute_NotImplemented(t *testing.T) {
	h := NewHandler(LoadConfig(), logger.NewNoOpLogger())

	_, err := h.Execute(context.Background(), &Input{})
	require.Error(t, err)
}
`

func main() {
	id := flag.String("id", "", "Topic ID from the registry (e.g., quote-published)")
	registryPath := flag.String("registry", "configs/topics.json", "Path to topic registry")
	outDir := flag.String("out", "internal/workers/screening", "Output directory root")
	force := flag.Bool("force", false, "Overwrite an existing worker package")
	flag.Parse()

	if *id == "" {
		fmt.Println("Error: -id is required")
		flag.Usage()
		os.Exit(1)
	}

	reg, err := registry.LoadRegistry(*registryPath)
	if err != nil {
		fmt.Printf("failed to load registry: %v\n", err)
		os.Exit(1)
	}

	var entry *registry.Topic
	for i := range reg.Topics {
		if reg.Topics[i].ID == *id {
			entry = &reg.Topics[i]
			break
		}
	}
	if entry == nil {
		fmt.Printf("topic %q not found in %s\n", *id, *registryPath)
		os.Exit(1)
	}

	data := workerData{
		Name:        entry.ID,
		PackageName: strings.ReplaceAll(entry.ID, "-", ""),
		Topic:       entry.Topic,
		Description: entry.Description,
		Fields:      structFields(entry.InputSchema),
	}

	dir := filepath.Join(*outDir, entry.ID)
	if _, err := os.Stat(dir); err == nil && !*force {
		fmt.Printf("worker package %s already exists (use -force to overwrite)\n", dir)
		os.Exit(1)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		fmt.Printf("failed to create %s: %v\n", dir, err)
		os.Exit(1)
	}

	files := map[string]string{
		"config.go":       configTemplate,
		"models.go":       modelsTemplate,
		"handler.go":      handlerTemplate,
		"handler_test.go": testTemplate,
	}
	for name, tmpl := range files {
		if err := render(filepath.Join(dir, name), tmpl, data); err != nil {
			fmt.Printf("failed to write %s: %v\n", name, err)
			os.Exit(1)
		}
	}
	fmt.Printf("Generated worker package %s for topic %s\n", dir, entry.Topic)
}

func render(path, tmpl string, data workerData) error {
	t, err := template.New(filepath.Base(path)).Parse(tmpl)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return t.Execute(f, data)
}
