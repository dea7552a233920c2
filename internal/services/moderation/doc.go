// Package moderation implements the keyword moderator capability used by the
// moderation stage.
package moderation
