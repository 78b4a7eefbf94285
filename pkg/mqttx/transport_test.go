package mqttx

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopicMatches(t *testing.T) {
	assert.True(t, TopicMatches("plant/+/telemetry", "plant/basil-1/telemetry"))
	assert.False(t, TopicMatches("plant/+/telemetry", "plant/basil-1/et/metrics"))
	assert.False(t, TopicMatches("plant/+/telemetry", "plant/basil-1"))
	assert.True(t, TopicMatches("plant/#", "plant/basil-1/et/metrics"))
	assert.False(t, TopicMatches("plant/+/telemetry", "garden/basil-1/telemetry"))
	assert.True(t, TopicMatches("plant/basil-1/telemetry", "plant/basil-1/telemetry"))
}

func TestIsDisconnected(t *testing.T) {
	assert.True(t, IsDisconnected(errors.New("not Connected")))
	assert.True(t, IsDisconnected(errors.New("connection lost before Disconnect")))
	assert.True(t, IsDisconnected(errors.New("EOF")))
	assert.False(t, IsDisconnected(errors.New("payload too large")))
	assert.False(t, IsDisconnected(nil))
}
