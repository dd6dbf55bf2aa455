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

// Package policy evaluates a submitted event against the configured
// content, timestamp, proof-of-work and allow/deny-list rules. Evaluate is
// pure: it has no side effects and depends only on its arguments.
package policy

import (
	"fmt"

	"github.com/relaycore/admission-engine/pkg/config"
	"github.com/relaycore/admission-engine/pkg/core"
	"github.com/relaycore/admission-engine/pkg/cryptoutil"
)

// Evaluate runs every configured check in order and returns the first
// rejection reason, or "" if the event is accepted.
func Evaluate(ev *core.Event, settings *config.Settings, now int64) string {
	limits := settings.Limits.Event

	for _, rec := range limits.Content {
		if !rec.AppliesTo(ev.Kind) {
			continue
		}
		if len(ev.Content) > rec.MaxLength {
			return fmt.Sprintf("rejected: content is longer than %d bytes", rec.MaxLength)
		}
	}

	if d := limits.CreatedAt.MaxPositiveDelta; d > 0 && ev.CreatedAt > now+d {
		return fmt.Sprintf("rejected: created_at is more than %d seconds in the future", d)
	}
	if d := limits.CreatedAt.MaxNegativeDelta; d > 0 && ev.CreatedAt < now-d {
		return fmt.Sprintf("rejected: created_at is more than %d seconds in the past", d)
	}

	if threshold := limits.EventID.MinLeadingZeroBits; threshold > 0 {
		if got := cryptoutil.LeadingZeroBits(ev.ID); got < threshold {
			return fmt.Sprintf("pow: difficulty %d<%d", got, threshold)
		}
	}
	if threshold := limits.Pubkey.MinLeadingZeroBits; threshold > 0 {
		if got := cryptoutil.LeadingZeroBits(ev.PubKey); got < threshold {
			return fmt.Sprintf("pow: pubkey difficulty %d<%d", got, threshold)
		}
	}

	if wl := limits.Pubkey.Whitelist; len(wl) > 0 && !hasPrefixMatch(wl, ev.PubKey) {
		return "blocked: pubkey not allowed"
	}
	if bl := limits.Pubkey.Blacklist; len(bl) > 0 && hasPrefixMatch(bl, ev.PubKey) {
		return "blocked: pubkey not allowed"
	}

	if wl := limits.Kind.Whitelist; len(wl) > 0 && !matchesAnyKind(wl, ev.Kind) {
		return fmt.Sprintf("blocked: event kind %d not allowed", ev.Kind)
	}
	if bl := limits.Kind.Blacklist; len(bl) > 0 && matchesAnyKind(bl, ev.Kind) {
		return fmt.Sprintf("blocked: event kind %d not allowed", ev.Kind)
	}

	return ""
}

func hasPrefixMatch(prefixes []string, value string) bool {
	for _, p := range prefixes {
		if len(value) >= len(p) && value[:len(p)] == p {
			return true
		}
	}
	return false
}

func matchesAnyKind(matchers []config.KindMatcher, kind uint16) bool {
	for _, m := range matchers {
		if m.Matches(kind) {
			return true
		}
	}
	return false
}
