// Package engine wires configuration, providers, tools, agents and the
// pipeline executor into a single Review call shared by the CLI, the web
// server and the MCP server.
package engine
