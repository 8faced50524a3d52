package grading

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timberline/sortline/internal/defect"
)

type fakeActuator struct {
	connected bool
	sendErr   error
	sent      []int
}

func (a *fakeActuator) IsConnected() bool { return a.connected }

func (a *fakeActuator) SendGradeCommand(cmd int) error {
	if a.sendErr != nil {
		return a.sendErr
	}
	a.sent = append(a.sent, cmd)
	return nil
}

func fixedGrade(g Grade) GradeFunc {
	return func([]defect.Measurement) (Grade, error) { return g, nil }
}

func TestCommandMapping(t *testing.T) {
	t.Parallel()

	cases := map[Grade]int{
		GradeG20: 1,
		GradeG21: 2,
		GradeG22: 2,
		GradeG23: 2,
		GradeG24: 3,
	}
	for grade, want := range cases {
		cmd, ok := Command(grade)
		require.True(t, ok, "grade %s", grade)
		assert.Equal(t, want, cmd, "grade %s", grade)
	}

	_, ok := Command("G2-9")
	assert.False(t, ok)
}

func TestBridgeForwardsCommand(t *testing.T) {
	t.Parallel()

	act := &fakeActuator{connected: true}
	b := NewBridge(fixedGrade(GradeG20), act, nil)

	out, err := b.Grade(nil)
	require.NoError(t, err)
	assert.Equal(t, GradeG20, out.Grade)
	assert.Equal(t, 1, out.Command)
	assert.True(t, out.CommandSent)
	assert.Equal(t, []int{1}, act.sent)
}

func TestBridgeActuatorFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	t.Run("disconnected", func(t *testing.T) {
		t.Parallel()
		b := NewBridge(fixedGrade(GradeG24), &fakeActuator{}, nil)
		out, err := b.Grade(nil)
		require.NoError(t, err)
		assert.Equal(t, 3, out.Command)
		assert.False(t, out.CommandSent)
		assert.Equal(t, "actuator not connected", out.ActuatorError)
	})

	t.Run("send error", func(t *testing.T) {
		t.Parallel()
		act := &fakeActuator{connected: true, sendErr: errors.New("serial timeout")}
		b := NewBridge(fixedGrade(GradeG22), act, nil)
		out, err := b.Grade(nil)
		require.NoError(t, err)
		assert.Equal(t, 2, out.Command)
		assert.False(t, out.CommandSent)
		assert.Equal(t, "serial timeout", out.ActuatorError)
	})
}

func TestBridgeNilActuator(t *testing.T) {
	t.Parallel()

	b := NewBridge(fixedGrade(GradeG21), nil, nil)
	out, err := b.Grade(nil)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Command)
	assert.False(t, out.CommandSent)
	assert.Empty(t, out.ActuatorError)
}

func TestBridgeGradeFunctionErrors(t *testing.T) {
	t.Parallel()

	t.Run("error propagates", func(t *testing.T) {
		t.Parallel()
		b := NewBridge(func([]defect.Measurement) (Grade, error) {
			return "", errors.New("model unavailable")
		}, nil, nil)
		_, err := b.Grade(nil)
		assert.ErrorContains(t, err, "model unavailable")
	})

	t.Run("unknown grade rejected", func(t *testing.T) {
		t.Parallel()
		b := NewBridge(fixedGrade("A1"), nil, nil)
		_, err := b.Grade(nil)
		assert.ErrorContains(t, err, "unknown grade")
	})
}
