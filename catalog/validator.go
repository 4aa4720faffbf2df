package catalog

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Validator checks redacted event data against the schema of its event type.
// Compiled schemas are cached per event type name; a catalog never changes a
// definition after construction, so the name is a stable key.
type Validator struct {
	mu       sync.RWMutex
	compiled map[string]*jsonschema.Schema
}

// NewValidator returns an empty Validator.
func NewValidator() *Validator {
	return &Validator{compiled: make(map[string]*jsonschema.Schema)}
}

// ValidateEvent checks data against d.Schema. Definitions without a schema
// accept any data.
func (v *Validator) ValidateEvent(d Definition, data any) error {
	if len(d.Schema) == 0 {
		return nil
	}

	sch, err := v.schemaFor(d)
	if err != nil {
		return err
	}
	if err := sch.Validate(data); err != nil {
		return fmt.Errorf("catalog: %s data: %w", d.Name, err)
	}
	return nil
}

func (v *Validator) schemaFor(d Definition) (*jsonschema.Schema, error) {
	v.mu.RLock()
	sch, ok := v.compiled[d.Name]
	v.mu.RUnlock()
	if ok {
		return sch, nil
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(d.Schema))
	if err != nil {
		return nil, fmt.Errorf("catalog: %s schema: %w", d.Name, err)
	}

	url := "ubtrippin://events/" + d.Name + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("catalog: %s schema: %w", d.Name, err)
	}
	sch, err = c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("catalog: compile %s schema: %w", d.Name, err)
	}

	v.mu.Lock()
	v.compiled[d.Name] = sch
	v.mu.Unlock()
	return sch, nil
}
