// Package universalis is a multi-agent simulation engine.
//
// A simulation advances in discrete ticks. Each tick the engine loads the
// latest world snapshot, the archon builds per-actor perception from the
// spatial state store, every actor's agent generates an intent through the
// language model, intents are screened by the feasibility engine, and a
// single adjudication call narrates the outcome. The adjudicated state is
// persisted and the cycle counter advances.
//
// # Quick Start
//
// Install the CLI:
//
//	go install github.com/geoscrai/universalis/cmd/universalis@latest
//
// Compile a scenario into an initial world state:
//
//	universalis compile wildfire --worlds ./worlds --scenarios ./scenarios
//
// Run the loop:
//
//	universalis run --config universalis.yaml
//
// The packages under pkg/ are importable on their own: pkg/engine drives the
// clock, pkg/archon adjudicates, pkg/state persists snapshots and terrain,
// pkg/memory holds scoped associative memory, and pkg/stream records the
// event log.
package universalis
