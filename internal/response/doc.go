// Package response formats tool results under a token budget.
//
// Formatter is the single gate every externally visible payload passes
// through: payloads that fit the budget are returned complete, oversized
// payloads are split into a chunk session and returned one chunk at a
// time, and failures are rendered in one fixed error shape. Error
// envelopes are always delivered complete, never chunked.
package response
