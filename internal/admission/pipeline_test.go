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

package admission

import (
	"context"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/stretchr/testify/require"

	"github.com/relaycore/admission-engine/pkg/config"
	"github.com/relaycore/admission-engine/pkg/core"
	"github.com/relaycore/admission-engine/pkg/cryptoutil"
)

func signedEvent(t *testing.T) *core.Event {
	t.Helper()
	return signedEventWithTags(t, core.Tags{})
}

func signedEventWithTags(t *testing.T, tags core.Tags) *core.Event {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	xOnly := schnorr.SerializePubKey(priv.PubKey())

	ev := &core.Event{
		PubKey:    hex.EncodeToString(xOnly),
		CreatedAt: 1_700_000_000,
		Kind:      1,
		Tags:      tags,
		Content:   "hello",
	}
	id, err := cryptoutil.ComputeID(ev)
	require.NoError(t, err)
	ev.ID = id

	idBytes, err := hex.DecodeString(id)
	require.NoError(t, err)
	sig, err := schnorr.Sign(priv, idBytes)
	require.NoError(t, err)
	ev.Sig = hex.EncodeToString(sig.Serialize())
	return ev
}

type fakeConn struct {
	id      string
	emitted []core.CommandResult
}

func (f *fakeConn) ID() string         { return f.id }
func (f *fakeConn) RemoteAddr() string { return "127.0.0.1" }
func (f *fakeConn) Emit(frame []any) error {
	f.emitted = append(f.emitted, core.CommandResult{
		EventID:  frame[1].(string),
		Accepted: frame[2].(bool),
		Reason:   frame[3].(string),
	})
	return nil
}

type fakeLimiter struct {
	limited bool
	err     error
}

func (f *fakeLimiter) Hit(context.Context, string, int64, int) (bool, error) {
	return f.limited, f.err
}

type fakeUsers struct {
	user *core.User
	err  error

	topUpOK   bool
	topUpErr  error
	topUpHits int
	decrHits  []*core.BigInt
}

func (f *fakeUsers) FindByPubkey(context.Context, string) (*core.User, error) { return f.user, f.err }
func (f *fakeUsers) Upsert(context.Context, *core.User) error                 { return nil }
func (f *fakeUsers) GetBalanceByPubkey(context.Context, string) (*core.BigInt, error) {
	if f.user == nil {
		return core.ZeroBigInt(), nil
	}
	return f.user.Balance, nil
}
func (f *fakeUsers) IncrementBalance(_ context.Context, _ string, amount *core.BigInt) error {
	if f.user != nil {
		f.user.Balance = f.user.Balance.Add(amount)
	}
	return nil
}
func (f *fakeUsers) DecrementBalance(_ context.Context, _ string, amount *core.BigInt) error {
	f.decrHits = append(f.decrHits, amount)
	if f.user != nil {
		f.user.Balance = f.user.Balance.Sub(amount)
	}
	return nil
}
func (f *fakeUsers) TopUpPubkey(_ context.Context, _ string, amount *core.BigInt) (bool, error) {
	f.topUpHits++
	if f.topUpErr != nil {
		return false, f.topUpErr
	}
	if !f.topUpOK {
		return false, nil
	}
	if f.user != nil {
		f.user.Balance = f.user.Balance.Add(amount)
	}
	return true, nil
}

type fakeWebhook struct {
	checkOK     bool
	checkReason string
	checkErr    error
	notified    int
}

func (f *fakeWebhook) CheckEvent(context.Context, *core.Event) (bool, string, error) {
	return f.checkOK, f.checkReason, f.checkErr
}
func (f *fakeWebhook) NotifyEvent(context.Context, *core.Event, core.CommandResult) {
	f.notified++
}

type fakeStrategy struct{ err error }

func (f *fakeStrategy) Execute(_ context.Context, ev *core.Event, conn core.Connection) error {
	if f.err != nil {
		return f.err
	}
	return conn.Emit(core.Accept(ev.ID).Frame())
}

type fakeFactory struct{ strat core.Strategy }

func (f *fakeFactory) Resolve(*core.Event, core.Connection) core.Strategy { return f.strat }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newPipeline(settings *config.Settings, limiter core.RateLimiter, users core.UserRepository, webhook core.EventWebhook, factory core.StrategyFactory) *Pipeline {
	return New(func() *config.Settings { return settings }, limiter, users, webhook, factory, testLogger())
}

func TestPipelineAcceptsValidEvent(t *testing.T) {
	ev := signedEvent(t)
	conn := &fakeConn{id: "c1"}
	wh := &fakeWebhook{checkOK: true}
	p := newPipeline(&config.Settings{}, &fakeLimiter{}, &fakeUsers{}, wh, &fakeFactory{strat: &fakeStrategy{}})

	err := p.Handle(context.Background(), ev, conn, Metadata{RemoteIP: "10.0.0.1"})
	require.NoError(t, err)
	require.Len(t, conn.emitted, 1)
	require.True(t, conn.emitted[0].Accepted)
	require.Equal(t, 1, wh.notified)
}

func TestPipelineRejectsTamperedIdentity(t *testing.T) {
	ev := signedEvent(t)
	ev.Content = "tampered"
	conn := &fakeConn{id: "c1"}
	wh := &fakeWebhook{checkOK: true}
	p := newPipeline(&config.Settings{}, &fakeLimiter{}, &fakeUsers{}, wh, &fakeFactory{strat: &fakeStrategy{}})

	err := p.Handle(context.Background(), ev, conn, Metadata{})
	require.NoError(t, err)
	require.Len(t, conn.emitted, 1)
	require.False(t, conn.emitted[0].Accepted)
	require.Equal(t, "invalid: event id does not match", conn.emitted[0].Reason)
	require.Zero(t, wh.notified, "event-callback must not fire for a rejected event")
}

func TestPipelineRejectsExpiredEvent(t *testing.T) {
	ev := signedEventWithTags(t, core.Tags{{"expiration", "1"}})
	conn := &fakeConn{id: "c1"}
	p := newPipeline(&config.Settings{}, &fakeLimiter{}, &fakeUsers{}, &fakeWebhook{checkOK: true}, &fakeFactory{strat: &fakeStrategy{}})

	err := p.Handle(context.Background(), ev, conn, Metadata{})
	require.NoError(t, err)
	require.Len(t, conn.emitted, 1)
	require.False(t, conn.emitted[0].Accepted)
	require.Equal(t, "event is expired", conn.emitted[0].Reason)
}

func TestPipelineRejectsOnRateLimit(t *testing.T) {
	ev := signedEvent(t)
	conn := &fakeConn{id: "c1"}
	settings := &config.Settings{}
	settings.Limits.Event.RateLimits = []config.RateLimitRule{{PeriodMillis: 60000, Rate: 1}}
	p := newPipeline(settings, &fakeLimiter{limited: true}, &fakeUsers{}, &fakeWebhook{checkOK: true}, &fakeFactory{strat: &fakeStrategy{}})

	err := p.Handle(context.Background(), ev, conn, Metadata{})
	require.NoError(t, err)
	require.Equal(t, "rate-limited: slow down", conn.emitted[0].Reason)
}

func TestPipelineRateLimiterErrorPropagates(t *testing.T) {
	ev := signedEvent(t)
	conn := &fakeConn{id: "c1"}
	settings := &config.Settings{}
	settings.Limits.Event.RateLimits = []config.RateLimitRule{{PeriodMillis: 60000, Rate: 1}}
	p := newPipeline(settings, &fakeLimiter{err: errors.New("boom")}, &fakeUsers{}, &fakeWebhook{checkOK: true}, &fakeFactory{strat: &fakeStrategy{}})

	err := p.Handle(context.Background(), ev, conn, Metadata{})
	require.Error(t, err)
	require.Empty(t, conn.emitted)
}

func TestPipelineRejectsOnEventCheckWebhook(t *testing.T) {
	ev := signedEvent(t)
	conn := &fakeConn{id: "c1"}
	wh := &fakeWebhook{checkOK: false, checkReason: "blocked: spam"}
	p := newPipeline(&config.Settings{}, &fakeLimiter{}, &fakeUsers{}, wh, &fakeFactory{strat: &fakeStrategy{}})

	err := p.Handle(context.Background(), ev, conn, Metadata{})
	require.NoError(t, err)
	require.Equal(t, "blocked: spam", conn.emitted[0].Reason)
}

func TestPipelineEventCheckTransportFailureReturnsError(t *testing.T) {
	ev := signedEvent(t)
	conn := &fakeConn{id: "c1"}
	wh := &fakeWebhook{checkErr: errors.New("timeout")}
	p := newPipeline(&config.Settings{}, &fakeLimiter{}, &fakeUsers{}, wh, &fakeFactory{strat: &fakeStrategy{}})

	err := p.Handle(context.Background(), ev, conn, Metadata{})
	require.Error(t, err)
	require.Empty(t, conn.emitted)
}

func TestPipelineRejectsUnsupportedKind(t *testing.T) {
	ev := signedEvent(t)
	conn := &fakeConn{id: "c1"}
	p := newPipeline(&config.Settings{}, &fakeLimiter{}, &fakeUsers{}, &fakeWebhook{checkOK: true}, &fakeFactory{strat: nil})

	err := p.Handle(context.Background(), ev, conn, Metadata{})
	require.NoError(t, err)
	require.Equal(t, "error: event not supported", conn.emitted[0].Reason)
}

func TestPipelineStrategyFailureRejects(t *testing.T) {
	ev := signedEvent(t)
	conn := &fakeConn{id: "c1"}
	p := newPipeline(&config.Settings{}, &fakeLimiter{}, &fakeUsers{}, &fakeWebhook{checkOK: true}, &fakeFactory{strat: &fakeStrategy{err: errors.New("boom")}})

	err := p.Handle(context.Background(), ev, conn, Metadata{})
	require.NoError(t, err)
	require.Len(t, conn.emitted, 1)
	require.False(t, conn.emitted[0].Accepted)
	require.Equal(t, "error: unable to process event", conn.emitted[0].Reason)
}

func TestPipelinePublicationFeeWithSuccessfulTopUp(t *testing.T) {
	ev := signedEvent(t)
	conn := &fakeConn{id: "c1"}
	settings := &config.Settings{}
	settings.Payments.Enabled = true
	settings.Payments.FeeSchedules.Admission = []config.FeeSchedule{{Enabled: true, Amount: core.NewBigInt(0)}}
	settings.Payments.FeeSchedules.Publication = []config.FeeSchedule{{Enabled: true, Amount: core.NewBigInt(100)}}
	settings.Payments.FeeSchedules.TopUp = []config.FeeSchedule{{Enabled: true, Amount: core.NewBigInt(500)}}

	user := &core.User{PubKey: ev.PubKey, IsAdmitted: true, Balance: core.NewBigInt(50)}
	users := &fakeUsers{user: user, topUpOK: true}
	strat := &fakeStrategy{}
	p := newPipeline(settings, &fakeLimiter{}, users, &fakeWebhook{checkOK: true}, &fakeFactory{strat: strat})

	err := p.Handle(context.Background(), ev, conn, Metadata{})
	require.NoError(t, err)
	require.Len(t, conn.emitted, 1)
	require.True(t, conn.emitted[0].Accepted)
	require.Equal(t, 1, users.topUpHits)
	require.Equal(t, core.NewBigInt(450).String(), user.Balance.String())
}

func TestPipelinePublicationFeeTopUpFailureBlocks(t *testing.T) {
	ev := signedEvent(t)
	conn := &fakeConn{id: "c1"}
	settings := &config.Settings{}
	settings.Payments.Enabled = true
	settings.Payments.FeeSchedules.Admission = []config.FeeSchedule{{Enabled: true, Amount: core.NewBigInt(0)}}
	settings.Payments.FeeSchedules.Publication = []config.FeeSchedule{{Enabled: true, Amount: core.NewBigInt(100)}}
	settings.Payments.FeeSchedules.TopUp = []config.FeeSchedule{{Enabled: true, Amount: core.NewBigInt(500)}}

	user := &core.User{PubKey: ev.PubKey, IsAdmitted: true, Balance: core.NewBigInt(50)}
	users := &fakeUsers{user: user, topUpOK: false}
	p := newPipeline(settings, &fakeLimiter{}, users, &fakeWebhook{checkOK: true}, &fakeFactory{strat: &fakeStrategy{}})

	err := p.Handle(context.Background(), ev, conn, Metadata{})
	require.NoError(t, err)
	require.Len(t, conn.emitted, 1)
	require.False(t, conn.emitted[0].Accepted)
	require.Equal(t, "blocked: insufficient balance", conn.emitted[0].Reason)
	require.Equal(t, 1, users.topUpHits)
	require.Empty(t, users.decrHits, "publication fee must not be debited when top-up fails")
}

func TestPipelineUserGatingBlocksUnadmitted(t *testing.T) {
	ev := signedEvent(t)
	conn := &fakeConn{id: "c1"}
	settings := &config.Settings{}
	settings.Payments.Enabled = true
	settings.Payments.FeeSchedules.Admission = []config.FeeSchedule{{Enabled: true, Amount: core.NewBigInt(10)}}
	p := newPipeline(settings, &fakeLimiter{}, &fakeUsers{user: nil}, &fakeWebhook{checkOK: true}, &fakeFactory{strat: &fakeStrategy{}})

	err := p.Handle(context.Background(), ev, conn, Metadata{})
	require.NoError(t, err)
	require.Equal(t, "blocked: pubkey not admitted", conn.emitted[0].Reason)
}
