package emergency

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddEntersEmergencyMode(t *testing.T) {
	s := New()
	assert.False(t, s.Mode())

	inc := s.Add(2, 17)
	require.NotEqual(t, uuid.Nil, inc.ID)
	assert.EqualValues(t, 2, inc.LaneID)
	assert.True(t, s.Mode())
	assert.Equal(t, 1, s.Count())
	assert.True(t, s.ActiveLanes()[2])

	// 非法车道不登记
	assert.Equal(t, Incident{}, s.Add(-1, 1))
	assert.Equal(t, Incident{}, s.Add(4, 1))
	assert.Equal(t, 1, s.Count())
}

func TestUpdateExpiresIncidents(t *testing.T) {
	s := New()
	s.Add(0, 1)
	s.Add(1, 2)

	// 未超时：全部保留
	s.Update(time.Now())
	assert.Equal(t, 2, s.Count())
	assert.True(t, s.Mode())

	// 全部超时：清空并退出紧急模式
	s.Update(time.Now().Add(incidentLifetime + time.Second))
	assert.Equal(t, 0, s.Count())
	assert.False(t, s.Mode())
	assert.Empty(t, s.ActiveLanes())
}

func TestReset(t *testing.T) {
	s := New()
	s.Add(3, 9)
	s.Reset()
	assert.False(t, s.Mode())
	assert.Equal(t, 0, s.Count())
}
