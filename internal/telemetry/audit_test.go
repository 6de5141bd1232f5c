package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chatspace/internal/mocks"
)

func TestAuditEmitterPublishesEnvelope(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	emitter := NewAuditEmitter(publisher, "audit.chat", "chatspace", "test")

	var captured AuditEnvelope
	publisher.On("Publish", mock.Anything, "audit.chat", mock.AnythingOfType("telemetry.AuditEnvelope")).
		Run(func(args mock.Arguments) {
			captured = args.Get(2).(AuditEnvelope)
		}).Return(nil).Once()

	userID := int64(7)
	emitter.Emit(context.Background(), "INFO", "Group chat created", "req-1", &userID)

	publisher.AssertExpectations(t)
	require.Equal(t, 1, captured.SchemaVersion)
	require.Equal(t, "audit_log", captured.EventType)
	require.Equal(t, "chatspace", captured.Service)
	require.Equal(t, "req-1", captured.RequestID)
	require.Equal(t, int64(7), *captured.UserID)
	require.Equal(t, "INFO", captured.Payload.Level)
}

func TestAuditEmitterNilSafe(t *testing.T) {
	var emitter *AuditEmitter
	emitter.Emit(context.Background(), "INFO", "noop", "", nil)

	NewAuditEmitter(nil, "audit.chat", "chatspace", "test").
		Emit(context.Background(), "INFO", "noop", "", nil)
}
