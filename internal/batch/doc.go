// Package batch generates every document of a specification for a list of
// document parameters.
//
// Each document runs in isolation: it gets its own working directories under
// gen/<suffix>, its own JSON log file and its own cache namespace. A failed
// document never stops the others; failures are collected into a single
// *errors.BatchError once every document has finished.
package batch
