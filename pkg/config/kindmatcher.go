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

import "fmt"

// KindMatcher is either a single exact kind or an inclusive [lo, hi] range,
// normalized to a Lo/Hi pair once at load time so admission never re-parses
// the YAML form per event.
type KindMatcher struct {
	Lo uint16
	Hi uint16
}

// Matches reports whether kind falls within the matcher's range.
func (m KindMatcher) Matches(kind uint16) bool {
	return kind >= m.Lo && kind <= m.Hi
}

func (m *KindMatcher) UnmarshalYAML(unmarshal func(any) error) error {
	var exact int
	if err := unmarshal(&exact); err == nil {
		m.Lo, m.Hi = uint16(exact), uint16(exact)
		return nil
	}
	var pair []int
	if err := unmarshal(&pair); err != nil {
		return fmt.Errorf("kind matcher: expected an integer or a [lo, hi] pair: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("kind matcher: range must have exactly 2 elements, got %d", len(pair))
	}
	m.Lo, m.Hi = uint16(pair[0]), uint16(pair[1])
	return nil
}
