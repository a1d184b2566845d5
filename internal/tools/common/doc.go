// Package common provides shared helpers for MCP tool implementations:
// instrumentation of tool handlers and argument parsing.
package common
