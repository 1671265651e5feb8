// Package jsonschema creates JSON Schema files from structs and validates
// JSON documents against a schema.
//
// To add validation to a type, e.g. config.InstanceConfig, add a
// sub-directory called "generate" with a main.go that writes the schema:
//
//	//go:generate go run .
//	package main
//
//	func main() {
//		jsonschema.GenerateSchema("../validate/instanceConfigSchema.json", &config.InstanceConfig{})
//	}
//
// then embed the schema file and call Validate with it.
package jsonschema

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/invopop/jsonschema"
	"github.com/xeipuuv/gojsonschema"
	"go.treeherder.org/infra/go/skerr"
	"go.treeherder.org/infra/go/sklog"
)

// ErrSchemaViolation is returned from Validate if the document doesn't
// conform to the schema.
var ErrSchemaViolation = errors.New("schema violation")

// Validate returns nil if document conforms to schema. On a violation the
// returned slice lists every problem found and the error is
// ErrSchemaViolation.
func Validate(ctx context.Context, document, schema []byte) ([]string, error) {
	schemaLoader := gojsonschema.NewBytesLoader(schema)
	documentLoader := gojsonschema.NewBytesLoader(document)
	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return nil, skerr.Wrapf(err, "failed while validating")
	}
	if len(result.Errors()) > 0 {
		formattedResults := make([]string, len(result.Errors()))
		for i, e := range result.Errors() {
			formattedResults[i] = fmt.Sprintf("%d: %s", i, e.String())
		}
		return formattedResults, ErrSchemaViolation
	}
	return nil, nil
}

// GenerateSchema writes the JSON Schema for v into filename and exits via
// sklog.Fatal on error. Meant for programs run by go generate.
func GenerateSchema(filename string, v interface{}) {
	b, err := json.MarshalIndent(jsonschema.Reflect(v), "", "  ")
	if err != nil {
		sklog.Fatal(err)
	}
	if err := os.WriteFile(filename, b, 0644); err != nil {
		sklog.Fatal(err)
	}
}
