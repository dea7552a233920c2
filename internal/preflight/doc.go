// Package preflight provides readiness checks for external services
// and filesystem paths that postflow depends on.
//
// These checks run in two contexts:
//   - The daemon logs RunAll results at startup so a misconfigured analyzer
//     or publisher endpoint shows up before the first job fails.
//   - The CLI "postflow config validate --check" command prints the same
//     results as a table.
//
// Each check is gated by its config toggle -- disabled features are skipped.
package preflight
