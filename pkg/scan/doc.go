// Package scan turns raw rule matches into findings.
//
// An [Engine] is built once per run from a validated policy and applies, in
// order: rule guards, rule evaluation, the subject context gate, the
// suppression list, and finding assembly. The engine is stateless across
// pages; several engines with different policies can coexist in one process.
package scan
