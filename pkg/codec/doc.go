// Package codec converts node values between their wire form and the
// application form on every read and write.
//
// The pipeline has three layers. Shape normalization and complex
// vector handling always run: CBOR integer widths collapse to int64,
// float32 to float64, and interleaved (re, im) float arrays become
// []complex128. The enum layer translates enumerated nodes between
// wire integers and their option labels. The parser layer applies
// user-registered conversion functions.
//
// Parsers are registered per connection on a Registry, keyed by
// concrete path or wildcard pattern. An exact path beats any pattern;
// among patterns the most recent registration wins.
package codec
