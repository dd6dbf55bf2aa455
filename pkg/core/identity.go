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

package core

import (
	"net"
	"net/http"

	"github.com/google/uuid"
)

// GenerateConnectionID derives a stable-enough per-connection identifier
// from the upgrade request, falling back to a random uuid.
func GenerateConnectionID(r *http.Request) string {
	if id := r.Header.Get("X-Relay-Connection-ID"); id != "" {
		return id
	}
	return uuid.New().String()
}

// RemoteHost strips the port off r.RemoteAddr, returning the bare address
// used for IP-based rate-limit whitelisting.
func RemoteHost(remoteAddr string) string {
	if remoteAddr == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
