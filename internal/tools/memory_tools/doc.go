// Package memory_tools exposes the journaling integration as MCP tools.
//
// Session tools report status, sign in, check the allow-list and return the
// signed-in profile. Journal tools upload images to Drive and append memory
// rows to the spreadsheet; they are only registered when the server is not
// read-only and they admit allow-listed users only.
package memory_tools
