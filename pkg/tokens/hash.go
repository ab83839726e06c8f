package tokens

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"reflect"
)

// EmptyHash is the hash of an absent or fully-deleted existing record.
var EmptyHash = Hash(Record{})

// Hash computes the deterministic content hash used as the ETag: sha256
// over the canonical JSON encoding of Sanitize(r). encoding/json sorts
// map keys on encode, so hash is stable regardless of the order fields
// were set in.
func Hash(r Record) string {
	canonical := Sanitize(r)
	// json.Marshal on a map[string]any sorts keys lexicographically.
	data, err := json.Marshal(canonical)
	if err != nil {
		// Sanitize only ever produces JSON-marshalable primitives; a
		// failure here means a Params field was extended without a
		// matching Sanitize case.
		panic("tokens: sanitized record is not marshalable: " + err.Error())
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SameEditable reports whether two records' user-editable projections
// are equal, used for the idempotence short-circuit on repost.
func SameEditable(a, b Record) bool {
	return reflect.DeepEqual(EditableProjection(a), EditableProjection(b))
}
