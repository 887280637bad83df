// Package services implements the driving port interfaces and the
// ingestion stages. Services contain the core business logic and
// orchestrate calls to driven ports (adapters) held by a Setup.
//
// Services are pure Go with no CGO or external dependencies.
package services
