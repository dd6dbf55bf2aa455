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

// Package cryptoutil computes and verifies the canonical event identity:
// a SHA-256 digest of a fixed-shape JSON array, signed with a BIP-340
// Schnorr signature over a 32-byte x-only public key.
package cryptoutil

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"github.com/relaycore/admission-engine/pkg/core"
)

// CanonicalBytes renders the canonical [0, pubkey, createdAt, kind, tags,
// content] array that event ids are hashed from. Compact separators,
// no HTML escaping, matching the wire convention of the reference
// Nostr ecosystem.
func CanonicalBytes(ev *core.Event) ([]byte, error) {
	tags := ev.Tags
	if tags == nil {
		tags = core.Tags{}
	}
	arr := []any{0, ev.PubKey, ev.CreatedAt, ev.Kind, tags, ev.Content}
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(arr); err != nil {
		return nil, fmt.Errorf("cryptoutil: canonicalize event: %w", err)
	}
	// json.Encoder.Encode always appends a trailing newline; strip it so
	// the digest matches encoding/json.Marshal's compact form.
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// ComputeID returns the hex-encoded SHA-256 digest of the event's
// canonical encoding.
func ComputeID(ev *core.Event) (string, error) {
	canon, err := CanonicalBytes(ev)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// VerifyIdentity reports whether ev.ID matches the hash of its canonical
// encoding and ev.Sig verifies against ev.PubKey over ev.ID.
func VerifyIdentity(ev *core.Event) (ok bool, reason string) {
	id, err := ComputeID(ev)
	if err != nil || id != ev.ID {
		return false, "invalid: event id does not match"
	}
	if !verifySignature(ev.PubKey, ev.ID, ev.Sig) {
		return false, "invalid: event signature verification failed"
	}
	return true, ""
}

func verifySignature(pubkeyHex, idHex, sigHex string) bool {
	pubkeyBytes, err := hex.DecodeString(pubkeyHex)
	if err != nil || len(pubkeyBytes) != 32 {
		return false
	}
	idBytes, err := hex.DecodeString(idHex)
	if err != nil || len(idBytes) != 32 {
		return false
	}
	sigBytes, err := hex.DecodeString(sigHex)
	if err != nil || len(sigBytes) != 64 {
		return false
	}

	pubkey, err := schnorr.ParsePubKey(pubkeyBytes)
	if err != nil {
		return false
	}
	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return false
	}
	return sig.Verify(idBytes, pubkey)
}

// LeadingZeroBits counts the leading zero bits of hexStr read as a
// big-endian unsigned integer, used for proof-of-work thresholds on event
// ids and pubkeys.
func LeadingZeroBits(hexStr string) int {
	count := 0
	for _, c := range hexStr {
		nibble, ok := hexNibble(c)
		if !ok {
			break
		}
		if nibble == 0 {
			count += 4
			continue
		}
		for bit := 3; bit >= 0; bit-- {
			if nibble&(1<<bit) != 0 {
				break
			}
			count++
		}
		break
	}
	return count
}

func hexNibble(c rune) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return byte(c - '0'), true
	case c >= 'a' && c <= 'f':
		return byte(c-'a') + 10, true
	case c >= 'A' && c <= 'F':
		return byte(c-'A') + 10, true
	default:
		return 0, false
	}
}
