package policy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	group    string
	settings map[string]*Settings
}

func (f *fakeEngine) LookupUser(user, hostIP, vhost, connName, connID string) string {
	return f.group
}

func (f *fakeEngine) LookupSettings(vhost, group string) (*Settings, bool) {
	s, ok := f.settings[vhost+"/"+group]
	return s, ok
}

func (f *fakeEngine) CloseConnection(connID string) {}

func TestAcceptSocketEnforcesLimit(t *testing.T) {
	g := NewGate(&fakeEngine{}, 1, nil)
	require.True(t, g.AcceptSocket(), "first accept under the limit must succeed")
	require.False(t, g.AcceptSocket(), "second accept at the limit must be denied")
	g.ReleaseSocket()
	require.True(t, g.AcceptSocket(), "accept must succeed again after a release frees a slot")
}

func TestAcceptSocketUnlimitedWhenZero(t *testing.T) {
	g := NewGate(&fakeEngine{}, 0, nil)
	for i := 0; i < 100; i++ {
		require.Truef(t, g.AcceptSocket(), "accept %d should succeed when maxConnections is 0 (unlimited)", i)
	}
}

func TestAdmitOpenDeniesUnknownGroup(t *testing.T) {
	g := NewGate(&fakeEngine{group: ""}, 0, nil)
	d := g.AdmitOpen("alice", "10.0.0.1", "", "c1", "")
	require.False(t, d.Allowed, "AdmitOpen must deny when LookupUser returns no group")
	require.Equal(t, DenyReason{Condition: "resource-limit-exceeded", Description: "connection disallowed by local policy"}, d.Reason)
}

func TestAdmitSessionDeniesAtLimit(t *testing.T) {
	g := NewGate(&fakeEngine{}, 0, nil)
	s := &Settings{GroupName: "g", MaxSessions: 1}
	ok, reason := g.AdmitSession(s, 1)
	require.False(t, ok, "session count at MaxSessions must be denied")
	require.Equal(t, DenyReason{Condition: "resource-limit-exceeded", Description: "session disallowed by local policy"}, reason)
	require.EqualValues(t, 1, g.GroupDenials("g").SessionDenied)
}

func TestAdmitSessionAllowsUnderLimit(t *testing.T) {
	g := NewGate(&fakeEngine{}, 0, nil)
	s := &Settings{GroupName: "g", MaxSessions: 2}
	ok, _ := g.AdmitSession(s, 0)
	require.True(t, ok, "session count under MaxSessions must be allowed")
}

func TestAdmitOpenAllowsKnownGroup(t *testing.T) {
	s := &Settings{GroupName: "default", Vhost: ""}
	g := NewGate(&fakeEngine{group: "default", settings: map[string]*Settings{"/default": s}}, 0, nil)
	d := g.AdmitOpen("alice", "10.0.0.1", "", "c1", "")
	require.True(t, d.Allowed)
	require.Same(t, s, d.Settings, "AdmitOpen must return the resolved settings")
}

func TestAdmitSenderAnonymousRequiresFlag(t *testing.T) {
	g := NewGate(&fakeEngine{}, 0, nil)
	s := &Settings{GroupName: "g", AllowAnonymousSender: false}
	ok, _ := g.AdmitSender(s, "u", 0, "", false)
	require.False(t, ok, "anonymous sender must be denied when AllowAnonymousSender is false")
	s.AllowAnonymousSender = true
	ok, _ = g.AdmitSender(s, "u", 0, "", false)
	require.True(t, ok, "anonymous sender must be allowed when AllowAnonymousSender is true")
}

func TestAdmitSenderTargetApproval(t *testing.T) {
	g := NewGate(&fakeEngine{}, 0, nil)
	s := &Settings{GroupName: "g", Targets: "orders.*"}
	ok, _ := g.AdmitSender(s, "u", 0, "orders.new", true)
	require.True(t, ok, "target matching the CSV pattern should be approved")
	ok, _ = g.AdmitSender(s, "u", 0, "other", true)
	require.False(t, ok, "target not matching the CSV pattern must be denied")
}

func TestAdmitSenderMaxSenders(t *testing.T) {
	g := NewGate(&fakeEngine{}, 0, nil)
	s := &Settings{GroupName: "g", MaxSenders: 1, AllowAnonymousSender: true}
	ok, reason := g.AdmitSender(s, "u", 1, "", false)
	require.False(t, ok, "sender count at MaxSenders must be denied")
	require.Equal(t, DenyReason{Condition: "resource-limit-exceeded", Description: "link disallowed by local policy"}, reason)
	require.EqualValues(t, 1, g.GroupDenials("g").SenderDenied)
}

func TestAdmitSenderUnauthorizedReason(t *testing.T) {
	g := NewGate(&fakeEngine{}, 0, nil)
	s := &Settings{GroupName: "g", AllowAnonymousSender: false}
	_, reason := g.AdmitSender(s, "u", 0, "", false)
	require.Equal(t, DenyReason{Condition: "unauthorized-access", Description: "link disallowed by local policy"}, reason)

	s2 := &Settings{GroupName: "g", Targets: "orders.*"}
	_, reason2 := g.AdmitSender(s2, "u", 0, "other", true)
	require.Equal(t, DenyReason{Condition: "unauthorized-access", Description: "link disallowed by local policy"}, reason2)
}

func TestAdmitReceiverMaxReceiversReason(t *testing.T) {
	g := NewGate(&fakeEngine{}, 0, nil)
	s := &Settings{GroupName: "g", MaxReceivers: 1, AllowDynamicSource: true}
	_, reason := g.AdmitReceiver(s, "u", 1, "", false, true)
	require.Equal(t, DenyReason{Condition: "resource-limit-exceeded", Description: "link disallowed by local policy"}, reason)
}

func TestAdmitReceiverUnauthorizedReason(t *testing.T) {
	g := NewGate(&fakeEngine{}, 0, nil)
	s := &Settings{GroupName: "g", AllowDynamicSource: false}
	_, reason := g.AdmitReceiver(s, "u", 0, "", false, true)
	require.Equal(t, DenyReason{Condition: "unauthorized-access", Description: "link disallowed by local policy"}, reason)

	s2 := &Settings{GroupName: "g", Sources: "events.*"}
	_, reason2 := g.AdmitReceiver(s2, "u", 0, "events.click", false, false)
	require.Equal(t, DenyReason{Condition: "unauthorized-access", Description: "link disallowed by local policy"}, reason2)
}

func TestAdmitReceiverDynamicSource(t *testing.T) {
	g := NewGate(&fakeEngine{}, 0, nil)
	s := &Settings{GroupName: "g", AllowDynamicSource: false}
	ok, _ := g.AdmitReceiver(s, "u", 0, "", false, true)
	require.False(t, ok, "dynamic source must be denied when AllowDynamicSource is false")
	s.AllowDynamicSource = true
	ok, _ = g.AdmitReceiver(s, "u", 0, "", false, true)
	require.True(t, ok, "dynamic source must be allowed when AllowDynamicSource is true")
}

func TestAdmitReceiverSourceApproval(t *testing.T) {
	g := NewGate(&fakeEngine{}, 0, nil)
	s := &Settings{GroupName: "g", Sources: "events.*"}
	ok, _ := g.AdmitReceiver(s, "u", 0, "events.click", true, false)
	require.True(t, ok, "source matching the CSV pattern should be approved")
	ok, _ = g.AdmitReceiver(s, "u", 0, "events.click", false, false)
	require.False(t, ok, "hasSource=false must be denied even if the name would match")
}

func TestCheckUserIDProxy(t *testing.T) {
	g := NewGate(&fakeEngine{}, 0, nil)
	s := &Settings{AllowUserIDProxy: false}
	require.True(t, g.CheckUserIDProxy(s, "alice", ""), "an absent user-id property must always pass")
	require.True(t, g.CheckUserIDProxy(s, "alice", "alice"), "a user-id matching the authenticated user must pass")
	require.False(t, g.CheckUserIDProxy(s, "alice", "bob"), "a mismatched user-id must be denied when proxying is disallowed")
	s.AllowUserIDProxy = true
	require.True(t, g.CheckUserIDProxy(s, "alice", "bob"), "a mismatched user-id must pass once proxying is allowed")
}
