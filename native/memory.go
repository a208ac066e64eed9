package native

import (
	"context"
	"encoding/binary"
	"unicode/utf8"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/qsp-runtime/errors"
	"github.com/wippyai/qsp-runtime/state"
)

// menuItemSize is the byte size of one menu record:
// text_ptr, text_len, image_ptr, image_len, all u32 little-endian.
const menuItemSize = 16

// errorRecordSize is the byte size of the last-error record:
// code, action, line, loc_ptr, loc_len.
const errorRecordSize = 20

// readBytes copies length bytes at offset out of guest memory.
func readBytes(mem api.Memory, offset, length uint32) ([]byte, error) {
	if length == 0 {
		return nil, nil
	}
	if mem == nil {
		return nil, errors.NotInitialized(errors.PhaseEngine, "guest memory")
	}
	b, ok := mem.Read(offset, length)
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseEngine, "read", offset, length)
	}
	out := make([]byte, length)
	copy(out, b)
	return out, nil
}

func readString(mem api.Memory, offset, length uint32) (string, error) {
	b, err := readBytes(mem, offset, length)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func writeBytes(mem api.Memory, offset uint32, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if mem == nil {
		return errors.NotInitialized(errors.PhaseEngine, "guest memory")
	}
	if !mem.Write(offset, data) {
		return errors.OutOfBounds(errors.PhaseEngine, "write", offset, uint32(len(data)))
	}
	return nil
}

func readU32(mem api.Memory, offset uint32) (uint32, error) {
	b, err := readBytes(mem, offset, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// unpack splits a packed i64 result into pointer (high word) and length.
func unpack(v uint64) (ptr, length uint32) {
	return uint32(v >> 32), uint32(v)
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// readMenu decodes count menu records starting at ptr.
func readMenu(mem api.Memory, ptr, count uint32) ([]state.Item, error) {
	if count == 0 {
		return nil, nil
	}
	raw, err := readBytes(mem, ptr, count*menuItemSize)
	if err != nil {
		return nil, err
	}
	items := make([]state.Item, count)
	for i := range items {
		rec := raw[i*menuItemSize:]
		text, err := readString(mem, binary.LittleEndian.Uint32(rec[0:]), binary.LittleEndian.Uint32(rec[4:]))
		if err != nil {
			return nil, err
		}
		image, err := readString(mem, binary.LittleEndian.Uint32(rec[8:]), binary.LittleEndian.Uint32(rec[12:]))
		if err != nil {
			return nil, err
		}
		items[i] = state.Item{Text: text, Image: image}
	}
	return items, nil
}

// guest wraps an instantiated engine module's allocator and memory.
type guest struct {
	mem   api.Memory
	alloc api.Function
	free  api.Function
}

// put copies data into a fresh guest allocation. Empty data yields (0, 0).
func (g *guest) put(ctx context.Context, data []byte) (uint32, uint32, error) {
	if len(data) == 0 {
		return 0, 0, nil
	}
	res, err := g.alloc.Call(ctx, uint64(len(data)))
	if err != nil {
		return 0, 0, err
	}
	ptr := uint32(res[0])
	if ptr == 0 {
		return 0, 0, errors.New(errors.PhaseEngine, errors.KindOutOfBounds).
			Detail("guest alloc of %d bytes failed", len(data)).Build()
	}
	if err := writeBytes(g.mem, ptr, data); err != nil {
		g.release(ctx, ptr, uint32(len(data)))
		return 0, 0, err
	}
	return ptr, uint32(len(data)), nil
}

func (g *guest) release(ctx context.Context, ptr, length uint32) {
	if ptr == 0 {
		return
	}
	if _, err := g.free.Call(ctx, uint64(ptr), uint64(length)); err != nil {
		Logger().Warn("guest free failed", zap.Uint32("ptr", ptr), zap.Error(err))
	}
}

// take reads a packed guest-owned buffer and frees it.
func (g *guest) take(ctx context.Context, packed uint64) ([]byte, error) {
	ptr, n := unpack(packed)
	if ptr == 0 {
		return nil, nil
	}
	defer g.release(ctx, ptr, n)
	return readBytes(g.mem, ptr, n)
}
