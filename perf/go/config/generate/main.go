// Writes the JSON Schema for config.InstanceConfig.
package main

import (
	"go.treeherder.org/infra/go/jsonschema"
	"go.treeherder.org/infra/perf/go/config"
)

//go:generate go run .
func main() {
	jsonschema.GenerateSchema("../validate/instanceConfigSchema.json", &config.InstanceConfig{})
}
