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

import "encoding/json"

// Snapshot is the packaged snapshot bundle: version metadata plus the exact
// ordered row sequence. It is what the hot cache stores under
// continent:{dataset}:{version} and what readers receive.
type Snapshot struct {
	Version       string `json:"version"`
	Checksum      string `json:"checksum"`
	Ts            int64  `json:"ts"`
	Rows          []Row  `json:"rows"`
	Count         int    `json:"count"`
	ParentVersion string `json:"parent_version,omitempty"`
	DiffChecksum  string `json:"diff_checksum,omitempty"`
}

// Encode serializes the snapshot for cache storage.
func (s *Snapshot) Encode() ([]byte, error) {
	return json.Marshal(s)
}

// DecodeSnapshot parses a cached snapshot payload.
func DecodeSnapshot(b []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
