package executor

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/ubermorgenland/openapi-mcp-bridge/pkg/openapi2mcp"
	"github.com/ubermorgenland/openapi-mcp-bridge/pkg/spec"
)

// Policy decides what a validation failure does to an invocation.
type Policy string

const (
	// PolicyLenient logs validation failures and calls the API anyway.
	PolicyLenient Policy = "lenient"
	// PolicyStrict rejects the invocation before any HTTP call.
	PolicyStrict Policy = "strict"
)

// ParsePolicy accepts "strict" or "lenient"; empty means lenient.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyLenient:
		return PolicyLenient, nil
	case PolicyStrict:
		return PolicyStrict, nil
	}
	return "", fmt.Errorf("unknown validation policy %q (want strict or lenient)", s)
}

// Validator checks invocation arguments against a tool.
type Validator interface {
	Validate(tool openapi2mcp.ToolDefinition, args map[string]any) error
}

// SchemaValidator validates arguments against the tool's input schema. Compiled schemas are
// cached per schema node, so tools sharing a name across documents never share a schema. A schema that does not compile, for example one still holding a
// reference the loader left in place, disables validation for that tool.
type SchemaValidator struct {
	mu      sync.Mutex
	schemas map[*spec.Node]*gojsonschema.Schema
	logger  *zap.Logger
}

// NewSchemaValidator returns an empty validator.
func NewSchemaValidator(logger *zap.Logger) *SchemaValidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchemaValidator{
		schemas: map[*spec.Node]*gojsonschema.Schema{},
		logger:  logger.With(zap.String("component", "validator")),
	}
}

func (v *SchemaValidator) schemaFor(tool openapi2mcp.ToolDefinition) *gojsonschema.Schema {
	v.mu.Lock()
	defer v.mu.Unlock()

	if s, ok := v.schemas[tool.InputSchema]; ok {
		return s
	}
	var compiled *gojsonschema.Schema
	raw, err := tool.InputSchema.MarshalJSON()
	if err == nil {
		compiled, err = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	}
	if err != nil {
		v.logger.Debug("input schema not usable for validation", zap.String("tool", tool.Name), zap.Error(err))
		compiled = nil
	}
	v.schemas[tool.InputSchema] = compiled
	return compiled
}

// Validate implements Validator.
func (v *SchemaValidator) Validate(tool openapi2mcp.ToolDefinition, args map[string]any) error {
	if tool.InputSchema == nil {
		return nil
	}
	schema := v.schemaFor(tool)
	if schema == nil {
		return nil
	}
	if args == nil {
		args = map[string]any{}
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return fmt.Errorf("validate arguments: %w", err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return errors.New(strings.Join(msgs, "; "))
}
