// Package app contains the core application logic. It wires configuration,
// the job loader, the task builder, the journal and the executor together
// and exposes the run, cleanup and status operations, decoupled from any
// specific entrypoint like a CLI.
package app
