// Package workspace manages the directories a generation run writes to.
//
// Every document gets its own tree under the specification's gen directory,
// keyed by the document suffix:
//
//	<spec>/gen/<suffix>/hash   cache records (fingerprints and contexts)
//	<spec>/gen/<suffix>/tmp    input snapshots handed to context builders
//	<spec>/gen/<suffix>/log    per-document JSON logs
//	<spec>/gen/<suffix>/out    rendered output
//	<spec>/gen/<suffix>/fig    figures produced by context builders
//
// Manager handles directories that are not tied to a document, such as the
// checkout of a specification fetched from git, in either ephemeral
// (timestamped, removed on Cleanup) or persistent (fixed path) mode.
package workspace
