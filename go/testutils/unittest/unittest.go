// Package unittest documents, and enforces, the external resources a test
// needs. Tests that need a resource that isn't available are skipped.
package unittest

import (
	"os"
	"testing"
)

// CockroachDBEmulatorHostEnvVar names the environment variable that holds
// the host:port of a local CockroachDB instance. It says "emulator" even
// though the instance is a real CockroachDB.
const CockroachDBEmulatorHostEnvVar = "COCKROACHDB_EMULATOR_HOST"

// PubSubEmulatorHostEnvVar is read by the PubSub client library itself.
const PubSubEmulatorHostEnvVar = "PUBSUB_EMULATOR_HOST"

// RequiresCockroachDB skips the test unless a CockroachDB instance is
// configured. Start one with:
//
//	cockroach start-single-node --insecure --listen-addr=localhost:26257
//
// and set COCKROACHDB_EMULATOR_HOST=localhost:26257.
func RequiresCockroachDB(t testing.TB) {
	if os.Getenv(CockroachDBEmulatorHostEnvVar) == "" {
		t.Skipf("Skipping, %s is not set.", CockroachDBEmulatorHostEnvVar)
	}
}

// RequiresPubSubEmulator skips the test unless the PubSub emulator is
// configured.
func RequiresPubSubEmulator(t testing.TB) {
	if os.Getenv(PubSubEmulatorHostEnvVar) == "" {
		t.Skipf("Skipping, %s is not set.", PubSubEmulatorHostEnvVar)
	}
}
