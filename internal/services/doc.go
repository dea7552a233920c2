// Package services defines shared utilities consumed by the pipeline stage
// capabilities and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp content IDs, job IDs, stage and platform
//     names, and correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper and KindOf classifier that
//     turn every capability failure into an ErrorKind before it reaches the
//     orchestrator.
//
// Subpackages hold the local capability implementations (moderation,
// analyzer, captioner, publisher) wired into the stage worker pools.
package services
