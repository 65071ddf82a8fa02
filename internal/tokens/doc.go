// Package tokens estimates how many language-model tokens a piece of
// structured data will consume once serialized.
//
// Estimates drive the token-budget guard in front of every tool response:
// payloads are serialized to one canonical textual form (compact JSON with
// sorted keys) and counted under the tokenizer of the requesting model.
// Tokenizer construction loads a full BPE rank table, so constructed
// tokenizers are kept in a small LRU cache shared by all callers.
//
// The package is deliberately forgiving: an unknown model identifier falls
// back to the default encoding, and if no encoding can be constructed at all
// a chars-per-token approximation is used. Counting never fails; the
// estimate guards a soft limit, so availability wins over strict accuracy.
// Only serialization of unrepresentable values surfaces an error.
package tokens
