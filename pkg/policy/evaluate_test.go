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

package policy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relaycore/admission-engine/pkg/config"
	"github.com/relaycore/admission-engine/pkg/core"
)

const now = int64(1_700_000_000)

func TestEvaluateAcceptsPlainEvent(t *testing.T) {
	ev := &core.Event{Kind: 1, Content: "hello", CreatedAt: now}
	settings := &config.Settings{}
	require.Empty(t, Evaluate(ev, settings, now))
}

func TestEvaluateContentTooLongScopedByKind(t *testing.T) {
	settings := &config.Settings{}
	settings.Limits.Event.Content = config.ContentLimits{
		{MaxLength: 200, Kinds: []config.KindMatcher{{Lo: 1, Hi: 1}}},
	}

	long := strings.Repeat("a", 300)
	rejected := Evaluate(&core.Event{Kind: 1, Content: long, CreatedAt: now}, settings, now)
	require.Equal(t, "rejected: content is longer than 200 bytes", rejected)

	accepted := Evaluate(&core.Event{Kind: 2, Content: long, CreatedAt: now}, settings, now)
	require.Empty(t, accepted)
}

func TestEvaluateFutureSkew(t *testing.T) {
	settings := &config.Settings{}
	settings.Limits.Event.CreatedAt.MaxPositiveDelta = 600

	ev := &core.Event{Kind: 1, CreatedAt: now + 900}
	require.Equal(t, "rejected: created_at is more than 600 seconds in the future", Evaluate(ev, settings, now))
}

func TestEvaluatePastSkew(t *testing.T) {
	settings := &config.Settings{}
	settings.Limits.Event.CreatedAt.MaxNegativeDelta = 86400

	ev := &core.Event{Kind: 1, CreatedAt: now - 90000}
	require.Equal(t, "rejected: created_at is more than 86400 seconds in the past", Evaluate(ev, settings, now))
}

func TestEvaluateEventIDProofOfWork(t *testing.T) {
	settings := &config.Settings{}
	settings.Limits.Event.EventID.MinLeadingZeroBits = 16

	ev := &core.Event{Kind: 1, CreatedAt: now, ID: "0fffffff"}
	require.Equal(t, "pow: difficulty 4<16", Evaluate(ev, settings, now))
}

func TestEvaluatePubkeyAllowDenyLists(t *testing.T) {
	settings := &config.Settings{}
	settings.Limits.Event.Pubkey.Whitelist = []string{"ab"}

	blocked := Evaluate(&core.Event{Kind: 1, CreatedAt: now, PubKey: "cd1234"}, settings, now)
	require.Equal(t, "blocked: pubkey not allowed", blocked)

	allowed := Evaluate(&core.Event{Kind: 1, CreatedAt: now, PubKey: "ab1234"}, settings, now)
	require.Empty(t, allowed)
}

func TestEvaluateKindRangeDenylist(t *testing.T) {
	settings := &config.Settings{}
	settings.Limits.Event.Kind.Blacklist = []config.KindMatcher{{Lo: 10000, Hi: 19999}}

	blocked := Evaluate(&core.Event{Kind: 15000, CreatedAt: now}, settings, now)
	require.Equal(t, "blocked: event kind 15000 not allowed", blocked)

	allowed := Evaluate(&core.Event{Kind: 1, CreatedAt: now}, settings, now)
	require.Empty(t, allowed)
}
