// Package mcp exposes the recall service as Model Context Protocol tools
// over stdio (github.com/modelcontextprotocol/go-sdk/mcp).
//
// Every tool delegates to recall.Service and returns structured output plus
// a one-line text summary. Invalid arguments come back as tool errors.
package mcp
