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

package pipeline

import (
	"go.temporal.io/sdk/worker"
)

// Register attaches both workflows and all activities to a worker.
func Register(w worker.Worker, a *Activities) {
	w.RegisterWorkflow(ContinentIngestWorkflow)
	w.RegisterWorkflow(UserContextWorkflow)

	w.RegisterActivity(a.ValidateContinent)
	w.RegisterActivity(a.CacheContinentData)
	w.RegisterActivity(a.ComputeContinentDiff)
	w.RegisterActivity(a.CommitContinentData)
	w.RegisterActivity(a.FanoutContinentUpdate)
	w.RegisterActivity(a.StoreUserCtx)
	w.RegisterActivity(a.ProjectView)
}
