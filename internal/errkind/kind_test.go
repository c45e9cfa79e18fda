package errkind

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromSRTCodeTotalMapping(t *testing.T) {
	Register(9999999, ConnectionLost)

	mapped := FromSRTCode(9999999, "connection was broken")
	require.Equal(t, ConnectionLost, mapped.Kind)
	require.Equal(t, 9999999, mapped.Code)

	unknown := FromSRTCode(-123, "some future SRT code")
	require.Equal(t, Other, unknown.Kind)
	require.Equal(t, -123, unknown.Code)
}

func TestPortablePredicates(t *testing.T) {
	Register(1, WouldBlock)
	Register(2, Timeout)
	Register(3, ConnectionLost)

	wrapped := fmt.Errorf("send failed: %w", FromSRTCode(1, "op would block"))
	require.True(t, IsWouldBlock(wrapped))
	require.False(t, IsTimeout(wrapped))

	require.True(t, IsTimeout(FromSRTCode(2, "")))
	require.True(t, IsConnectionLost(FromSRTCode(3, "")))
	require.True(t, IsCancelled(New(Cancelled, "")))
}

func TestErrorMessageFormatting(t *testing.T) {
	err := NewWithCode(SendFailed, 42, "broken pipe")
	require.Equal(t, "SendFailed: broken pipe", err.Error())

	bare := New(Cancelled, "")
	require.Equal(t, "Cancelled", bare.Error())
}
