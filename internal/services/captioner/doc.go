// Package captioner implements the captioning capability with a
// deterministic template renderer.
package captioner
