// Package grading carries session measurements to an external grade
// function and forwards the resulting sort command to the actuator. The
// grading rules themselves live outside this module; the bridge only owns
// the grade vocabulary and the grade-to-command mapping.
package grading

import (
	"fmt"

	"github.com/timberline/sortline/internal/defect"
	"github.com/timberline/sortline/internal/monitoring"
)

// Grade is an SS-EN 1611-1 appearance grade.
type Grade string

const (
	GradeG20 Grade = "G2-0"
	GradeG21 Grade = "G2-1"
	GradeG22 Grade = "G2-2"
	GradeG23 Grade = "G2-3"
	GradeG24 Grade = "G2-4"
)

// commands maps each grade to its sorting bin command. The highest grade
// goes to bin 1, the reject grade to bin 3, everything between to bin 2.
var commands = map[Grade]int{
	GradeG20: 1,
	GradeG21: 2,
	GradeG22: 2,
	GradeG23: 2,
	GradeG24: 3,
}

// Command returns the actuator command for a grade. ok is false for grades
// outside the vocabulary.
func Command(g Grade) (int, bool) {
	cmd, ok := commands[g]
	return cmd, ok
}

// GradeFunc computes a grade from the defects measured over a session.
type GradeFunc func(measurements []defect.Measurement) (Grade, error)

// Actuator drives the physical sorter.
type Actuator interface {
	IsConnected() bool
	SendGradeCommand(cmd int) error
}

// Outcome is the result of grading one session.
type Outcome struct {
	Grade         Grade  `json:"grade"`
	Command       int    `json:"command"`
	CommandSent   bool   `json:"command_sent"`
	ActuatorError string `json:"actuator_error,omitempty"`
}

// Bridge connects session results to the grade function and the actuator.
type Bridge struct {
	grade    GradeFunc
	actuator Actuator
	metrics  *monitoring.Metrics
}

// NewBridge builds a bridge. actuator and metrics may be nil; a nil
// actuator means grades are computed but never forwarded.
func NewBridge(grade GradeFunc, actuator Actuator, metrics *monitoring.Metrics) *Bridge {
	return &Bridge{grade: grade, actuator: actuator, metrics: metrics}
}

// Grade runs the grade function over the session's measurements and
// forwards the mapped command to the actuator. Actuator problems are
// recorded on the outcome rather than failing the call; a grading error or
// an unknown grade fails it.
func (b *Bridge) Grade(measurements []defect.Measurement) (Outcome, error) {
	grade, err := b.grade(measurements)
	if err != nil {
		return Outcome{}, fmt.Errorf("grade function: %w", err)
	}
	b.metrics.IncGrade(string(grade))

	cmd, ok := Command(grade)
	if !ok {
		return Outcome{}, fmt.Errorf("grade function returned unknown grade %q", grade)
	}
	out := Outcome{Grade: grade, Command: cmd}

	if b.actuator == nil {
		return out, nil
	}
	if !b.actuator.IsConnected() {
		out.ActuatorError = "actuator not connected"
		b.metrics.IncActuatorFailure()
		monitoring.Logf("grading: actuator not connected, command %d dropped", cmd)
		return out, nil
	}
	if err := b.actuator.SendGradeCommand(cmd); err != nil {
		out.ActuatorError = err.Error()
		b.metrics.IncActuatorFailure()
		monitoring.Logf("grading: send command %d: %v", cmd, err)
		return out, nil
	}
	out.CommandSent = true
	return out, nil
}
