// Copyright (c) 2025, WSO2 LLC. (https://www.wso2.com).
//
// WSO2 LLC. licenses this file to you under the Apache License,
// Version 2.0 (the "License"); you may not use this file except
// in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied. See the License for the
// specific language governing permissions and limitations
// under the License.

package logging

import "log/slog"

// AdmissionLogger records the outcome of one admission stage, mirroring
// PacketLogger's single-purpose shape but keyed to the admission pipeline's
// own fields instead of route/direction.
type AdmissionLogger struct {
	logger *slog.Logger
}

// NewAdmissionLogger wraps logger.
func NewAdmissionLogger(logger *slog.Logger) *AdmissionLogger {
	return &AdmissionLogger{logger: logger}
}

// Log records a terminal admission outcome for one event.
func (a *AdmissionLogger) Log(connID, pubkey, eventID, stage string, accepted bool, reason string) {
	a.logger.Info("admission",
		"connection_id", connID,
		"pubkey", pubkey,
		"event_id", eventID,
		"stage", stage,
		"accepted", accepted,
		"reason", reason,
	)
}
