package ipc

import (
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeProgress encodes a fraction-complete value as an 8-byte little-endian
// IEEE 754 double, per spec.
func EncodeProgress(fraction float64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(fraction))
	return buf
}

// DecodeProgress decodes an EXTRACTED_WITH_PROGRESS payload.
func DecodeProgress(payload []byte) (float64, error) {
	if len(payload) != 8 {
		return 0, fmt.Errorf("ipc: progress payload must be 8 bytes, got %d", len(payload))
	}
	bits := binary.LittleEndian.Uint64(payload)
	return math.Float64frombits(bits), nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func byteBool(b byte) bool {
	return b != 0
}

// Stage1Result is the INSTALLATION_FINISHED_STAGE_1 payload.
type Stage1Result struct {
	CanInstallSilently bool
	TargetTerminated   bool
}

// Encode serializes the result as {can_install_silently, target_terminated}.
func (r Stage1Result) Encode() []byte {
	return []byte{boolByte(r.CanInstallSilently), boolByte(r.TargetTerminated)}
}

// DecodeStage1Result parses an INSTALLATION_FINISHED_STAGE_1 payload.
func DecodeStage1Result(payload []byte) (Stage1Result, error) {
	if len(payload) != 2 {
		return Stage1Result{}, fmt.Errorf("ipc: stage1 result payload must be 2 bytes, got %d", len(payload))
	}
	return Stage1Result{
		CanInstallSilently: byteBool(payload[0]),
		TargetTerminated:   byteBool(payload[1]),
	}, nil
}

// Stage2Command is the inbound RESUME_TO_STAGE_2 payload.
type Stage2Command struct {
	Relaunch bool
	ShowUI   bool
}

// Encode serializes the command as {relaunch, show_ui}.
func (c Stage2Command) Encode() []byte {
	return []byte{boolByte(c.Relaunch), boolByte(c.ShowUI)}
}

// DecodeStage2Command parses a RESUME_TO_STAGE_2 payload.
func DecodeStage2Command(payload []byte) (Stage2Command, error) {
	if len(payload) != 2 {
		return Stage2Command{}, fmt.Errorf("ipc: stage2 command payload must be 2 bytes, got %d", len(payload))
	}
	return Stage2Command{
		Relaunch: byteBool(payload[0]),
		ShowUI:   byteBool(payload[1]),
	}, nil
}

// Stage2Result is the INSTALLATION_FINISHED_STAGE_2 payload.
type Stage2Result struct {
	Cancelled        bool
	TargetTerminated bool
}

// Encode serializes the result as {cancelled, target_terminated}.
func (r Stage2Result) Encode() []byte {
	return []byte{boolByte(r.Cancelled), boolByte(r.TargetTerminated)}
}

// DecodeStage2Result parses an INSTALLATION_FINISHED_STAGE_2 payload.
func DecodeStage2Result(payload []byte) (Stage2Result, error) {
	if len(payload) != 2 {
		return Stage2Result{}, fmt.Errorf("ipc: stage2 result payload must be 2 bytes, got %d", len(payload))
	}
	return Stage2Result{
		Cancelled:        byteBool(payload[0]),
		TargetTerminated: byteBool(payload[1]),
	}, nil
}
