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

package wire

import "errors"

// Error taxonomy. Terminal errors stop a workflow without retries; readers
// map them onto their own surfaces (the HTTP layer turns ErrInvalidInput
// into 400 and ErrNotFound into 404).
var (
	// ErrInvalidInput marks missing required fields, an empty row sequence
	// on ingest, or a row count outside [0, MaxRows].
	ErrInvalidInput = errors.New("invalid input")

	// ErrChecksumMismatch marks a reingest of an already-seen
	// (dataset, version) pair with a different checksum.
	ErrChecksumMismatch = errors.New("checksum mismatch for same dataset+version")

	// ErrNotFound marks a dataset or version that is absent or not ready.
	ErrNotFound = errors.New("not found")
)

// Application error types carried across the orchestrator boundary.
// Steps raise these as non-retryable error types; the workflow retry
// policy excludes them.
const (
	ErrTypeInvalidInput     = "InvalidInput"
	ErrTypeChecksumMismatch = "ChecksumMismatch"
)
