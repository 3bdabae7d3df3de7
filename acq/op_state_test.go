package acq

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAtomicOpState_String(t *testing.T) {
	tests := []struct {
		state OpState
		want  string
	}{
		{ClosedState, "closed"},
		{ClosingState, "closing"},
		{OpeningState, "opening"},
		{OpenedState, "opened"},
		{OpState(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			st := &AtomicOpState{}
			st.Set(tt.state)
			assert.Equal(t, tt.want, st.String())
		})
	}
}

func TestAtomicOpState_Lifecycle(t *testing.T) {
	assert := assert.New(t)

	st := &AtomicOpState{}
	assert.True(st.IsClosed())

	assert.False(st.ToOpened(), "must pass through opening")
	assert.True(st.ToOpening())
	assert.False(st.ToOpening())
	assert.True(st.ToOpened())
	assert.True(st.ToOpened())
	assert.True(st.IsOpened())

	assert.True(st.ToClosing())
	assert.False(st.ToClosing(), "second closer loses")
	assert.True(st.ToClosed())
	assert.True(st.ToClosed())
	assert.True(st.IsClosed())
}

func TestAtomicOpState_CloseWhileOpening(t *testing.T) {
	st := &AtomicOpState{}
	assert.True(t, st.ToOpening())
	assert.True(t, st.ToClosing())
	assert.False(t, st.ToOpened())
	assert.True(t, st.ToClosed())
}
