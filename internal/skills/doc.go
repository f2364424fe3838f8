// Package skills provides declarative skills: named workflows defined in JSON,
// JSONC or YAML that chain tool calls with ${var} substitution. Skills are
// loaded into a Store, run by an Executor, and exposed as tools in the
// ToolRegistry.
package skills
