package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLLMServiceWithoutAPIKey(t *testing.T) {
	svc, err := NewLLMService(context.Background(), "", "gemini-2.5-flash", 30*time.Second, zap.NewNop())
	require.NoError(t, err, "a missing key is an absent capability, not a startup failure")
	t.Cleanup(svc.Close)

	assert.False(t, svc.Available())

	_, err = svc.Generate(context.Background(), ConversationAgent, "hello")
	assert.ErrorIs(t, err, ErrAgentsUnavailable)
}
