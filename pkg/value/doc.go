// Package value defines the typed values exchanged over topics.
//
// A Value is a closed sum over four kinds:
//   - Float: every numeric input (signed, unsigned, float32, json.Number,
//     CBOR integers) is normalized to float64 on construction, so 4 and 4.0
//     are the same value on the wire
//   - String
//   - Boolean
//   - Unsupported: anything else (arrays, raw bytes, nil), carried verbatim
//
// Only Float, String and Boolean values can be published. TypeOf is the total
// mapping from a Value to its wire Type and rejects Unsupported values with
// ErrUnsupportedValueType.
//
// Incoming messages may carry any wire type the server announces; their
// payloads are kept as Unsupported values and forwarded unchanged.
package value
