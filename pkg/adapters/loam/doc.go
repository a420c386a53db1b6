// Package loam serves declarative experiment documents (Markdown frontmatter,
// YAML or JSON) from a Loam repository.
package loam
