// Package platform holds the per-platform publishing rules and the pure
// validator applied to every platform render.
//
// Table is loaded once at startup (built-in limits plus optional config
// overrides) and is read-only afterwards. Validate and Fit never touch the
// network or storage, which keeps them exhaustively testable.
package platform
