// Package mcp exposes voxnotes over the Model Context Protocol.
//
// It uses the MCP SDK (github.com/modelcontextprotocol/go-sdk/mcp) to
// register note capture, entity query and model status tools. Every tool
// is also recorded in a ToolRegistry so clients can discover tools with
// tool_search. Errors are returned as tool errors carrying the same
// user-facing message the CLI prints.
package mcp
