package outbox

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoffDelayDoublesAndCaps(t *testing.T) {
	manager := NewDLQManager(nil, 5, time.Minute)

	require.Equal(t, time.Minute, manager.backoffDelay(1))
	require.Equal(t, 2*time.Minute, manager.backoffDelay(2))
	require.Equal(t, 4*time.Minute, manager.backoffDelay(3))
	require.Equal(t, 32*time.Minute, manager.backoffDelay(6))
	require.Equal(t, time.Hour, manager.backoffDelay(7), "delay should cap at one hour")
	require.Equal(t, time.Hour, manager.backoffDelay(12))
}

func TestNewDLQManagerAppliesDefaults(t *testing.T) {
	manager := NewDLQManager(nil, 0, 0)

	require.Equal(t, 5, manager.maxRetries)
	require.Equal(t, time.Minute, manager.baseDelay)
}

func TestEncodeWireFormat(t *testing.T) {
	payload := []byte(`{"session_id":"s1"}`)
	frame := encodeWireFormat(1337, payload)

	require.Equal(t, byte(0), frame[0])
	require.Equal(t, uint32(1337), binary.BigEndian.Uint32(frame[1:5]))
	require.Equal(t, payload, frame[5:])
}
