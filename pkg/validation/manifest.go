package validation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const manifestSchemaURL = "cspack://components-definition.schema.json"

// manifestSchema only covers what the packager relies on; the content
// itself is left to the external validator.
const manifestSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["name"],
  "properties": {
    "name": {
      "type": "string",
      "pattern": "\\S"
    }
  }
}`

// ValidationLevel represents issue severity
type ValidationLevel string

const (
	ValidationLevelError   ValidationLevel = "error"
	ValidationLevelWarning ValidationLevel = "warning"
)

// Issue is a single manifest problem
type Issue struct {
	Field   string
	Message string
	Level   ValidationLevel
}

func (i Issue) String() string {
	if i.Field == "" {
		return fmt.Sprintf("[%s] %s", i.Level, i.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", i.Level, i.Field, i.Message)
}

// Result contains manifest check results
type Result struct {
	Valid  bool
	Issues []Issue
}

// AddIssue records an issue; errors invalidate the result
func (r *Result) AddIssue(field, message string, level ValidationLevel) {
	r.Issues = append(r.Issues, Issue{Field: field, Message: message, Level: level})
	if level == ValidationLevelError {
		r.Valid = false
	}
}

// ManifestValidator checks that the component folder carries a usable
// definition file
type ManifestValidator struct {
	file   string
	schema *jsonschema.Schema
	out    io.Writer
}

// NewManifestValidator creates a validator for the manifest file name
// inside the validated folder. Diagnostics are written to out.
func NewManifestValidator(file string, out io.Writer) (*ManifestValidator, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(manifestSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to parse manifest schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(manifestSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("failed to load manifest schema: %w", err)
	}
	schema, err := c.Compile(manifestSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile manifest schema: %w", err)
	}

	if out == nil {
		out = os.Stdout
	}
	return &ManifestValidator{file: file, schema: schema, out: out}, nil
}

// Check validates the manifest inside folder
func (m *ManifestValidator) Check(folder string) *Result {
	result := &Result{Valid: true}
	path := filepath.Join(folder, m.file)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			result.AddIssue(m.file, "file not found", ValidationLevelError)
		} else {
			result.AddIssue(m.file, err.Error(), ValidationLevelError)
		}
		return result
	}

	if !json.Valid(data) {
		result.AddIssue(m.file, "not valid JSON", ValidationLevelError)
		return result
	}

	inst, err := jsonschema.UnmarshalJSON(strings.NewReader(string(data)))
	if err != nil {
		result.AddIssue(m.file, err.Error(), ValidationLevelError)
		return result
	}

	if err := m.schema.Validate(inst); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			for _, line := range strings.Split(strings.TrimSpace(verr.Error()), "\n") {
				result.AddIssue(m.file, strings.TrimSpace(line), ValidationLevelError)
			}
		} else {
			result.AddIssue(m.file, err.Error(), ValidationLevelError)
		}
	}
	return result
}

// Validate implements interfaces.Validator
func (m *ManifestValidator) Validate(_ context.Context, folder string) (bool, error) {
	result := m.Check(folder)
	for _, issue := range result.Issues {
		fmt.Fprintln(m.out, issue.String())
	}
	return result.Valid, nil
}
