// Package doctools provides the line-addressed document tools offered to
// the agent: keyword and semantic search, line reads, line insert, edit
// and delete, and a metadata outline.
//
// Every tool reads document_id and user_id from its arguments. The agent
// overwrites both from the request before dispatch, so a tool only ever
// sees the caller's own document.
package doctools
