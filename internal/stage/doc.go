// Package stage defines the boundary between the pipeline and the external
// capabilities it drives: the moderator, analyzer, captioner, publisher, and
// analytics collector interfaces, the typed payload each stage produces, and
// the Outcome a worker reports back to the orchestrator.
package stage
