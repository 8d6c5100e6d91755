// Copyright 2024 Edgectx, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package wire defines the wire-level contracts shared by every component:
// canonical JSON serialization, content checksums, the version identifier
// grammar, the packaged snapshot bundle, and the error taxonomy.
package wire

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"reflect"
)

// Contract constants. These are compile-time parts of the protocol, not
// tunables; changing them changes what peers observe.
const (
	// MaxRows is the largest row count accepted by a single ingest.
	MaxRows = 10_000

	// TTLSeconds is the lifetime of every hot-cache key and of the durable
	// cache mirror entries.
	TTLSeconds = 86_400

	// RowBatchSize bounds a single row insert statement.
	RowBatchSize = 1_000

	// DeltaBatchSize bounds a single delta insert statement.
	DeltaBatchSize = 500
)

// Row is a single structured record of a dataset. Rows carrying an "id"
// field participate in diffing; the field is coerced to a string key.
type Row = map[string]interface{}

// Normalize returns v decoded into the generic JSON shape: maps with
// sorted-on-encode string keys, slices, float64 numbers, strings, bools and
// nils. Two values that differ only by map key order or by numeric spelling
// (1 vs 1.0) normalize to the same value.
func Normalize(v interface{}) (interface{}, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Canonical returns the canonical serialization of v: UTF-8 JSON with
// field-sorted maps. All checksums in the system are computed over this
// encoding.
func Canonical(v interface{}) ([]byte, error) {
	n, err := Normalize(v)
	if err != nil {
		return nil, err
	}
	// encoding/json emits map keys in sorted order.
	return json.Marshal(n)
}

// Checksum returns the hex SHA-256 of the canonical serialization of v.
func Checksum(v interface{}) (string, error) {
	b, err := Canonical(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Equal reports structural equality of two values after normalization.
// Map key order is ignored and numbers compare by value.
func Equal(a, b interface{}) bool {
	na, err := Normalize(a)
	if err != nil {
		return false
	}
	nb, err := Normalize(b)
	if err != nil {
		return false
	}
	return reflect.DeepEqual(na, nb)
}
