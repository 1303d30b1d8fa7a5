// Package expr compiles CEL (Common Expression Language) guard expressions
// for scan rules. Guards are evaluated against page metadata, allowing a rule
// to restrict itself to a subset of the scanned URLs.
package expr
