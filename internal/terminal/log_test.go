package terminal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resurrectci/resurrectci/internal/models"
)

func TestLogAppendPreservesOrder(t *testing.T) {
	log := NewLog()

	log.Append(models.MessageInput, "$ ls")
	log.Append(models.MessageOutput, "README.md")
	log.Append(models.MessageSystem, "Command completed")

	messages := log.Messages()
	require.Len(t, messages, 3)
	assert.Equal(t, models.MessageInput, messages[0].Kind)
	assert.Equal(t, models.MessageOutput, messages[1].Kind)
	assert.Equal(t, models.MessageSystem, messages[2].Kind)

	// Ids are unique for stable list rendering.
	assert.NotEqual(t, messages[0].ID, messages[1].ID)
	assert.NotEqual(t, messages[1].ID, messages[2].ID)
}

func TestLogClear(t *testing.T) {
	log := NewLog()
	log.Append(models.MessageOutput, "hello")
	log.Append(models.MessageError, "oops")
	require.Equal(t, 2, log.Len())

	log.Clear()
	assert.Equal(t, 0, log.Len())

	// Empty log clears to empty.
	log.Clear()
	assert.Equal(t, 0, log.Len())
}

func TestLogSince(t *testing.T) {
	log := NewLog()
	first := log.Append(models.MessageOutput, "one")
	log.Append(models.MessageOutput, "two")
	log.Append(models.MessageOutput, "three")

	tail := log.Since(first)
	require.Len(t, tail, 2)
	assert.Equal(t, "two", tail[0].Text)
	assert.Equal(t, "three", tail[1].Text)

	// Unknown id (e.g. after a clear) returns the full transcript.
	assert.Len(t, log.Since("gone"), 3)
}

func TestLogSimulatedTagging(t *testing.T) {
	log := NewLog()
	log.Append(models.MessageOutput, "real")
	log.AppendSimulated(models.MessageOutput, "canned")

	messages := log.Messages()
	assert.False(t, messages[0].Simulated)
	assert.True(t, messages[1].Simulated)
}

func TestLogSubscribe(t *testing.T) {
	log := NewLog()
	id, ch := log.Subscribe()

	log.Append(models.MessageOutput, "streamed")

	msg := <-ch
	assert.Equal(t, "streamed", msg.Text)

	log.Unsubscribe(id)
	_, open := <-ch
	assert.False(t, open)
}
