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

import (
	"fmt"
	"regexp"
)

// versionPattern is the version identifier grammar: v{uint}.{hex8}.
var versionPattern = regexp.MustCompile(`^v[0-9]+\.[0-9a-f]{8}$`)

// DeriveVersion builds the version identifier for a snapshot ingested at
// epoch second ts with the given content checksum.
func DeriveVersion(ts int64, checksum string) string {
	return fmt.Sprintf("v%d.%s", ts, checksum[:8])
}

// ValidVersion reports whether v conforms to the version grammar.
func ValidVersion(v string) bool {
	return versionPattern.MatchString(v)
}

// IngestWorkflowID is the idempotent workflow identifier for an ingest.
func IngestWorkflowID(datasetID, version string, ts int64) string {
	return fmt.Sprintf("continent-%s-%s-%d", datasetID, version, ts)
}

// ContextWorkflowID is the workflow identifier for a user context update.
func ContextWorkflowID(userID, datasetID string, ts int64) string {
	return fmt.Sprintf("uctx-%s-%s-%d", userID, datasetID, ts)
}
