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

package config

import (
	"fmt"
	"log/slog"

	"github.com/relaycore/admission-engine/pkg/core"
)

// Settings is the process-wide admission configuration snapshot. One value
// is read at the start of every admission and threaded through every
// stage; it is never mutated in place (see Watcher).
type Settings struct {
	Limits   LimitsConfig   `yaml:"limits"`
	Payments PaymentsConfig `yaml:"payments"`
	Webhooks WebhooksConfig `yaml:"webhooks"`
}

type LimitsConfig struct {
	Event EventLimits `yaml:"event"`
}

type EventLimits struct {
	Content    ContentLimits    `yaml:"content"`
	CreatedAt  CreatedAtLimit   `yaml:"createdAt"`
	EventID    PowLimit         `yaml:"eventId"`
	Pubkey     PubkeyLimit      `yaml:"pubkey"`
	Kind       KindLimit        `yaml:"kind"`
	RateLimits []RateLimitRule  `yaml:"rateLimits"`
	Whitelists WhitelistsConfig `yaml:"whitelists"`
}

// ContentLimit bounds content length, optionally scoped to a set of kinds.
type ContentLimit struct {
	MaxLength int           `yaml:"maxLength"`
	Kinds     []KindMatcher `yaml:"kinds,omitempty"`
}

// AppliesTo reports whether the record applies to kind. An unscoped record
// (no Kinds) applies universally.
func (c ContentLimit) AppliesTo(kind uint16) bool {
	if len(c.Kinds) == 0 {
		return true
	}
	for _, m := range c.Kinds {
		if m.Matches(kind) {
			return true
		}
	}
	return false
}

// ContentLimits accepts either a single YAML mapping or a sequence of them.
type ContentLimits []ContentLimit

func (c *ContentLimits) UnmarshalYAML(unmarshal func(any) error) error {
	var single ContentLimit
	if err := unmarshal(&single); err == nil && single.MaxLength != 0 {
		*c = ContentLimits{single}
		return nil
	}
	var many []ContentLimit
	if err := unmarshal(&many); err != nil {
		return fmt.Errorf("limits.event.content: %w", err)
	}
	*c = many
	return nil
}

type CreatedAtLimit struct {
	MaxPositiveDelta int64 `yaml:"maxPositiveDelta"`
	MaxNegativeDelta int64 `yaml:"maxNegativeDelta"`
}

type PowLimit struct {
	MinLeadingZeroBits int `yaml:"minLeadingZeroBits"`
}

type PubkeyLimit struct {
	MinLeadingZeroBits int          `yaml:"minLeadingZeroBits"`
	Whitelist          []string     `yaml:"whitelist"`
	Blacklist          []string     `yaml:"blacklist"`
	MinBalance         *core.BigInt `yaml:"minBalance"`
}

type KindLimit struct {
	Whitelist []KindMatcher `yaml:"whitelist"`
	Blacklist []KindMatcher `yaml:"blacklist"`
}

type RateLimitRule struct {
	PeriodMillis int64         `yaml:"period"`
	Rate         int           `yaml:"rate"`
	Kinds        []KindMatcher `yaml:"kinds,omitempty"`
}

// AppliesTo reports whether this rule governs events of kind.
func (r RateLimitRule) AppliesTo(kind uint16) bool {
	if len(r.Kinds) == 0 {
		return true
	}
	for _, m := range r.Kinds {
		if m.Matches(kind) {
			return true
		}
	}
	return false
}

type WhitelistsConfig struct {
	Pubkeys     []string `yaml:"pubkeys"`
	IPAddresses []string `yaml:"ipAddresses"`
}

// MatchesPubkey reports whether pubkey has any configured prefix.
func (w WhitelistsConfig) MatchesPubkey(pubkey string) bool {
	return hasPrefixMatch(w.Pubkeys, pubkey)
}

// MatchesIP reports whether ip has any configured prefix.
func (w WhitelistsConfig) MatchesIP(ip string) bool {
	return hasPrefixMatch(w.IPAddresses, ip)
}

func hasPrefixMatch(prefixes []string, value string) bool {
	for _, p := range prefixes {
		if len(value) >= len(p) && value[:len(p)] == p {
			return true
		}
	}
	return false
}

type PaymentsConfig struct {
	Enabled      bool               `yaml:"enabled"`
	FeeSchedules FeeSchedulesConfig `yaml:"feeSchedules"`
}

type FeeSchedulesConfig struct {
	Admission   []FeeSchedule `yaml:"admission"`
	Publication []FeeSchedule `yaml:"publication"`
	TopUp       []FeeSchedule `yaml:"topUp"`
}

type FeeSchedule struct {
	Enabled    bool             `yaml:"enabled"`
	Amount     *core.BigInt     `yaml:"amount"`
	Whitelists WhitelistsConfig `yaml:"whitelists,omitempty"`
}

// FirstAdmissionSchedule returns index [0] of the admission schedule, per
// the fee-schedule indexing design note: only index 0 is ever consulted.
func (s *Settings) FirstAdmissionSchedule() (FeeSchedule, bool) {
	return firstSchedule(s.Payments.FeeSchedules.Admission)
}

// FirstPublicationSchedule returns index [0] of the publication schedule.
func (s *Settings) FirstPublicationSchedule() (FeeSchedule, bool) {
	return firstSchedule(s.Payments.FeeSchedules.Publication)
}

// FirstTopUpSchedule returns index [0] of the top-up schedule.
func (s *Settings) FirstTopUpSchedule() (FeeSchedule, bool) {
	return firstSchedule(s.Payments.FeeSchedules.TopUp)
}

func firstSchedule(schedules []FeeSchedule) (FeeSchedule, bool) {
	if len(schedules) == 0 {
		return FeeSchedule{}, false
	}
	return schedules[0], true
}

// WarnExtraSchedules logs a warning for each fee-schedule sequence that
// carries more than one entry. Only index [0] of admission, publication,
// and topUp is ever consulted; additional entries are accepted by the
// schema but silently unused.
func (s *Settings) WarnExtraSchedules(logger *slog.Logger) {
	warnIfExtra(logger, "admission", s.Payments.FeeSchedules.Admission)
	warnIfExtra(logger, "publication", s.Payments.FeeSchedules.Publication)
	warnIfExtra(logger, "topUp", s.Payments.FeeSchedules.TopUp)
}

func warnIfExtra(logger *slog.Logger, name string, schedules []FeeSchedule) {
	if len(schedules) > 1 {
		logger.Warn("fee schedule has unused entries beyond index 0", "schedule", name, "count", len(schedules))
	}
}

type WebhooksConfig struct {
	PubkeyChecks   bool            `yaml:"pubkeyChecks"`
	EventChecks    bool            `yaml:"eventChecks"`
	EventCallbacks bool            `yaml:"eventCallbacks"`
	TopUps         bool            `yaml:"topUps"`
	Endpoints      EndpointsConfig `yaml:"endpoints"`
}

type EndpointsConfig struct {
	BaseURL       string `yaml:"baseURL"`
	PubkeyCheck   string `yaml:"pubkeyCheck"`
	EventCheck    string `yaml:"eventCheck"`
	EventCallback string `yaml:"eventCallback"`
	TopUps        string `yaml:"topUps"`
}
