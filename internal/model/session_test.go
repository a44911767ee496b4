package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPairKeyOrderIndependent(t *testing.T) {
	assert.Equal(t, PairKey("alice", "bob"), PairKey("bob", "alice"))
	assert.Equal(t, "alice:bob", PairKey("bob", "alice"))
	assert.NotEqual(t, PairKey("alice", "bob"), PairKey("alice", "carol"))
}

func TestHasParticipant(t *testing.T) {
	session := &ChatSession{CustomerID: "cust-1", ClientID: "cli-1"}

	assert.True(t, session.HasParticipant("cust-1"))
	assert.True(t, session.HasParticipant("cli-1"))
	assert.False(t, session.HasParticipant("other"))
	assert.False(t, session.HasParticipant(""))
}

func TestOtherParticipant(t *testing.T) {
	session := &ChatSession{CustomerID: "cust-1", ClientID: "cli-1"}

	assert.Equal(t, "cli-1", session.OtherParticipant("cust-1"))
	assert.Equal(t, "cust-1", session.OtherParticipant("cli-1"))
	assert.Equal(t, "", session.OtherParticipant("other"))
}

func TestValidServiceContext(t *testing.T) {
	for _, ctx := range []string{ServiceContextCFS, ServiceContextTransport, ServiceContext3PL, ServiceContextWarehouse, ""} {
		assert.True(t, ValidServiceContext(ctx), ctx)
	}
	assert.False(t, ValidServiceContext("Rail"))
}
