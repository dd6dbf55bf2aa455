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
	"fmt"
	"math/big"
)

// BigInt is a millisatoshi-scale exact integer used throughout the balance
// and fee path. It is never represented as a float: JSON and YAML both
// round-trip it through its decimal string form.
type BigInt struct {
	big.Int
}

// NewBigInt wraps an int64 amount.
func NewBigInt(v int64) *BigInt {
	b := &BigInt{}
	b.SetInt64(v)
	return b
}

// ZeroBigInt returns a new zero-valued amount.
func ZeroBigInt() *BigInt {
	return NewBigInt(0)
}

// ParseBigInt parses a decimal string into an amount.
func ParseBigInt(s string) (*BigInt, error) {
	b := &BigInt{}
	if _, ok := b.SetString(s, 10); !ok {
		return nil, fmt.Errorf("amount: invalid decimal integer %q", s)
	}
	return b, nil
}

// IsPositive reports whether the amount is strictly greater than zero.
func (b *BigInt) IsPositive() bool {
	return b != nil && b.Sign() > 0
}

// LessThan reports whether b < other, treating a nil receiver as zero.
func (b *BigInt) LessThan(other *BigInt) bool {
	return b.orZero().Cmp(&other.orZero().Int) < 0
}

// Add returns a new amount equal to b + other.
func (b *BigInt) Add(other *BigInt) *BigInt {
	out := &BigInt{}
	out.Int.Add(&b.orZero().Int, &other.orZero().Int)
	return out
}

// Sub returns a new amount equal to b - other.
func (b *BigInt) Sub(other *BigInt) *BigInt {
	out := &BigInt{}
	out.Int.Sub(&b.orZero().Int, &other.orZero().Int)
	return out
}

func (b *BigInt) orZero() *BigInt {
	if b == nil {
		return ZeroBigInt()
	}
	return b
}

// MarshalJSON renders the amount as a decimal string, matching the wire
// contract of the pubkey-check/top-up webhook payloads.
func (b BigInt) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", b.Int.String())), nil
}

// UnmarshalJSON accepts either a decimal string or a bare JSON number.
func (b *BigInt) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" || s == "null" {
		b.SetInt64(0)
		return nil
	}
	if _, ok := b.SetString(s, 10); !ok {
		return fmt.Errorf("amount: invalid decimal integer %q", s)
	}
	return nil
}

// UnmarshalYAML accepts either a YAML integer or a quoted decimal string.
func (b *BigInt) UnmarshalYAML(unmarshal func(any) error) error {
	var asInt int64
	if err := unmarshal(&asInt); err == nil {
		b.SetInt64(asInt)
		return nil
	}
	var asString string
	if err := unmarshal(&asString); err != nil {
		return err
	}
	if asString == "" {
		b.SetInt64(0)
		return nil
	}
	if _, ok := b.SetString(asString, 10); !ok {
		return fmt.Errorf("amount: invalid decimal integer %q", asString)
	}
	return nil
}
