package web

import (
	"encoding/json"

	"github.com/pkg/errors"

	"kfsim-go/config"
	"kfsim-go/kalman"
	"kfsim-go/sim"
)

// Inbound message types.
const (
	MsgCursor   = "cursor"
	MsgControls = "controls"
	MsgMatrix   = "matrix"
	MsgRun      = "run"
	MsgReset    = "reset"
	MsgRestart  = "restart"
)

// Outbound message types.
const (
	MsgSnapshot = "snapshot"
	MsgError    = "error"
)

// Controller is the part of the runner the web layer drives.
type Controller interface {
	SubmitCursor(p sim.Point) bool
	UpdateControls(u sim.ControlsUpdate) error
	SetMatrix(k sim.MatrixKey, m kalman.Matrix4) error
	Reset() error
	Restart() error
	Current() sim.Snapshot
}

// Inbound is a message from a websocket client.
type Inbound struct {
	Type     string              `json:"type"`
	Position *sim.Point          `json:"position,omitempty"`
	Controls *sim.ControlsUpdate `json:"controls,omitempty"`
	Matrix   string              `json:"matrix,omitempty"`
	Values   *kalman.Matrix4     `json:"values,omitempty"`
	Running  *bool               `json:"running,omitempty"`
}

type Outbound struct {
	Type     string        `json:"type"`
	Snapshot *sim.Snapshot `json:"snapshot,omitempty"`
	Error    string        `json:"error,omitempty"`
}

func encodeSnapshot(s sim.Snapshot) ([]byte, error) {
	return json.Marshal(Outbound{Type: MsgSnapshot, Snapshot: &s})
}

func encodeError(err error) []byte {
	b, _ := json.Marshal(Outbound{Type: MsgError, Error: err.Error()})
	return b
}

// Decode parses raw into an Inbound. Non-numeric matrix cells fail here and
// never reach the controller.
func Decode(raw []byte) (Inbound, error) {
	var msg Inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		return msg, errors.Wrap(config.ErrInvalidParameter, err.Error())
	}
	return msg, nil
}

// Dispatch applies msg to ctrl.
func Dispatch(ctrl Controller, msg Inbound) error {
	switch msg.Type {
	case MsgCursor:
		if msg.Position == nil {
			return errors.Wrap(config.ErrInvalidParameter, "cursor without position")
		}
		if !(kalman.Vector4{msg.Position.X, msg.Position.Y}).IsFinite() {
			return errors.Wrap(config.ErrInvalidParameter, "cursor position not finite")
		}
		ctrl.SubmitCursor(*msg.Position)
		return nil
	case MsgControls:
		if msg.Controls == nil {
			return errors.Wrap(config.ErrInvalidParameter, "controls without body")
		}
		return ctrl.UpdateControls(*msg.Controls)
	case MsgMatrix:
		k, err := sim.ParseMatrixKey(msg.Matrix)
		if err != nil {
			return errors.Wrap(config.ErrInvalidParameter, err.Error())
		}
		if msg.Values == nil {
			return errors.Wrapf(config.ErrInvalidParameter, "matrix %s without values", k)
		}
		return ctrl.SetMatrix(k, *msg.Values)
	case MsgRun:
		if msg.Running == nil {
			return errors.Wrap(config.ErrInvalidParameter, "run without flag")
		}
		return ctrl.UpdateControls(sim.ControlsUpdate{IsRunning: msg.Running})
	case MsgReset:
		return ctrl.Reset()
	case MsgRestart:
		return ctrl.Restart()
	}
	return errors.Wrapf(config.ErrInvalidParameter, "unknown message type %q", msg.Type)
}
