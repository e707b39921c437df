package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

var clientSchemaFiles = map[string]string{
	TypeHello:    "hello.schema.json",
	TypeCommand:  "command.schema.json",
	TypeComplete: "complete.schema.json",
	TypeAct:      "act.schema.json",
}

var (
	schemasOnce sync.Once
	schemas     map[string]*jsonschema.Schema
	schemasErr  error
)

func loadSchemas() (map[string]*jsonschema.Schema, error) {
	schemasOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		out := map[string]*jsonschema.Schema{}
		for typ, name := range clientSchemaFiles {
			b, err := schemaFS.ReadFile("schemas/" + name)
			if err != nil {
				schemasErr = fmt.Errorf("read schema %s: %w", name, err)
				return
			}
			if err := c.AddResource(name, bytes.NewReader(b)); err != nil {
				schemasErr = fmt.Errorf("add schema %s: %w", name, err)
				return
			}
			s, err := c.Compile(name)
			if err != nil {
				schemasErr = fmt.Errorf("compile schema %s: %w", name, err)
				return
			}
			out[typ] = s
		}
		schemas = out
	})
	return schemas, schemasErr
}

// ValidateClient checks a client message of type typ against its schema.
// Types without a schema are rejected.
func ValidateClient(typ string, raw []byte) error {
	ss, err := loadSchemas()
	if err != nil {
		return err
	}
	s, ok := ss[typ]
	if !ok {
		return fmt.Errorf("unsupported message type %q", typ)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return s.Validate(v)
}
