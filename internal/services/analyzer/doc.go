// Package analyzer implements the content analyzer capability: a
// deterministic lexicon analyzer used by default and an LLM-backed analyzer
// for richer keyword and hashtag suggestions.
package analyzer
