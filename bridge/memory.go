package bridge

import (
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/callbridge"
	"github.com/wippyai/callbridge/errors"
)

// guestMemory adapts wazero memory to callbridge.Memory. Reads are copied out
// of linear memory.
type guestMemory struct {
	mem api.Memory
}

var _ callbridge.Memory = (*guestMemory)(nil)

// WrapMemory wraps a wazero api.Memory.
func WrapMemory(mem api.Memory) callbridge.Memory {
	if mem == nil {
		return nil
	}
	return &guestMemory{mem: mem}
}

func (m *guestMemory) Read(offset, length uint32) ([]byte, error) {
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseDispatch, offset, length, m.mem.Size())
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *guestMemory) Write(offset uint32, data []byte) error {
	if !m.mem.Write(offset, data) {
		return errors.OutOfBounds(errors.PhaseDispatch, offset, uint32(len(data)), m.mem.Size())
	}
	return nil
}

func (m *guestMemory) ReadU8(offset uint32) (uint8, error) {
	v, ok := m.mem.ReadByte(offset)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseDispatch, offset, 1, m.mem.Size())
	}
	return v, nil
}

func (m *guestMemory) ReadU32(offset uint32) (uint32, error) {
	v, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseDispatch, offset, 4, m.mem.Size())
	}
	return v, nil
}

func (m *guestMemory) ReadU64(offset uint32) (uint64, error) {
	v, ok := m.mem.ReadUint64Le(offset)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseDispatch, offset, 8, m.mem.Size())
	}
	return v, nil
}

func (m *guestMemory) WriteU32(offset uint32, value uint32) error {
	if !m.mem.WriteUint32Le(offset, value) {
		return errors.OutOfBounds(errors.PhaseDispatch, offset, 4, m.mem.Size())
	}
	return nil
}

func (m *guestMemory) WriteU64(offset uint32, value uint64) error {
	if !m.mem.WriteUint64Le(offset, value) {
		return errors.OutOfBounds(errors.PhaseDispatch, offset, 8, m.mem.Size())
	}
	return nil
}

func (m *guestMemory) Size() uint32 {
	return m.mem.Size()
}
