package native

import (
	"context"
	"io"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/qsp-runtime/resource"
	"github.com/wippyai/qsp-runtime/state"
)

const (
	i32 = api.ValueTypeI32
	i64 = api.ValueTypeI64
)

// hostFunc is one import the engine module may call.
type hostFunc struct {
	Fn      api.GoModuleFunc
	Name    string
	Params  []api.ValueType
	Results []api.ValueType
}

func fn(name string, f api.GoModuleFunc, params, results []api.ValueType) hostFunc {
	return hostFunc{Name: name, Fn: f, Params: params, Results: results}
}

func types(t ...api.ValueType) []api.ValueType { return t }

// guestString reads a (ptr, len) argument pair. Out-of-range reads are
// logged and read as empty.
func guestString(m api.Module, ptr, length uint64) string {
	s, err := readString(m.Memory(), uint32(ptr), uint32(length))
	if err != nil {
		Logger().Warn("bad string argument from engine", zap.Error(err))
		return ""
	}
	return s
}

func boolResult(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

// instantiateHost registers the variant's callback imports.
func (e *Engine) instantiateHost(ctx context.Context, r wazero.Runtime) error {
	builder := r.NewHostModuleBuilder(e.variant.ImportModule)
	for _, f := range e.hostFuncs() {
		builder = builder.NewFunctionBuilder().
			WithGoModuleFunction(f.Fn, f.Params, f.Results).
			Export(f.Name)
	}
	_, err := builder.Instantiate(ctx)
	return err
}

func (e *Engine) hostFuncs() []hostFunc {
	funcs := []hostFunc{
		fn("on_show_image", func(ctx context.Context, m api.Module, stack []uint64) {
			e.cb.OnShowImage(ctx, guestString(m, stack[0], stack[1]))
		}, types(i32, i32), nil),

		fn("on_show_message", func(ctx context.Context, m api.Module, stack []uint64) {
			e.cb.OnShowMessage(ctx, guestString(m, stack[0], stack[1]))
		}, types(i32, i32), nil),

		fn("on_input_box", func(ctx context.Context, m api.Module, stack []uint64) {
			prompt := guestString(m, stack[0], stack[1])
			buf, capacity := uint32(stack[2]), int(uint32(stack[3]))
			answer := truncateUTF8(e.cb.OnInputBox(ctx, prompt), capacity)
			if err := writeBytes(m.Memory(), buf, []byte(answer)); err != nil {
				Logger().Warn("input answer not written", zap.Error(err))
				stack[0] = 0
				return
			}
			stack[0] = uint64(len(answer))
		}, types(i32, i32, i32, i32), types(i32)),

		fn("on_play_file", func(ctx context.Context, m api.Module, stack []uint64) {
			e.cb.OnPlayFile(ctx, guestString(m, stack[0], stack[1]), int(api.DecodeI32(stack[2])))
		}, types(i32, i32, i32), nil),

		fn("on_is_playing_file", func(ctx context.Context, m api.Module, stack []uint64) {
			stack[0] = boolResult(e.cb.OnIsPlayingFile(ctx, guestString(m, stack[0], stack[1])))
		}, types(i32, i32), types(i32)),

		fn("on_close_file", func(ctx context.Context, m api.Module, stack []uint64) {
			e.cb.OnCloseFile(ctx, guestString(m, stack[0], stack[1]))
		}, types(i32, i32), nil),

		fn("on_open_game", func(ctx context.Context, m api.Module, stack []uint64) {
			e.cb.OnOpenGame(ctx, guestString(m, stack[0], stack[1]), stack[2] != 0)
		}, types(i32, i32, i32), nil),

		fn("on_open_game_status", func(ctx context.Context, m api.Module, stack []uint64) {
			e.cb.OnOpenGameStatus(ctx, guestString(m, stack[0], stack[1]))
		}, types(i32, i32), nil),

		fn("on_save_game_status", func(ctx context.Context, m api.Module, stack []uint64) {
			e.cb.OnSaveGameStatus(ctx, guestString(m, stack[0], stack[1]))
		}, types(i32, i32), nil),

		fn("on_set_timer", func(ctx context.Context, _ api.Module, stack []uint64) {
			e.cb.OnSetTimer(ctx, int(api.DecodeI32(stack[0])))
		}, types(i32), nil),

		fn("on_get_ms_count", func(ctx context.Context, _ api.Module, stack []uint64) {
			stack[0] = api.EncodeI32(int32(e.cb.OnGetElapsedMs(ctx)))
		}, nil, types(i32)),

		fn("on_sleep", func(ctx context.Context, _ api.Module, stack []uint64) {
			e.cb.OnSleep(ctx, int(api.DecodeI32(stack[0])))
		}, types(i32), nil),

		fn("on_show_window", func(ctx context.Context, _ api.Module, stack []uint64) {
			e.cb.OnShowWindow(ctx, int(api.DecodeI32(stack[0])), stack[1] != 0)
		}, types(i32, i32), nil),
	}

	switch e.variant.Refresh {
	case RefreshGated:
		funcs = append(funcs, fn("on_refresh", func(ctx context.Context, _ api.Module, stack []uint64) {
			forced, changed := stack[0] != 0, stack[1] != 0
			if forced || changed {
				e.cb.OnRefresh(ctx, forced)
			}
		}, types(i32, i32), nil))
	default:
		funcs = append(funcs, fn("on_refresh", func(ctx context.Context, _ api.Module, stack []uint64) {
			e.cb.OnRefresh(ctx, stack[0] != 0)
		}, types(i32), nil))
	}

	switch e.variant.Menu {
	case MenuIncremental:
		funcs = append(funcs,
			fn("on_delete_menu", func(context.Context, api.Module, []uint64) {
				e.menu = nil
			}, nil, nil),
			fn("on_add_menu_item", func(_ context.Context, m api.Module, stack []uint64) {
				e.menu = append(e.menu, state.Item{
					Text:  guestString(m, stack[0], stack[1]),
					Image: guestString(m, stack[2], stack[3]),
				})
			}, types(i32, i32, i32, i32), nil),
			fn("on_show_menu", func(ctx context.Context, _ api.Module, stack []uint64) {
				items := e.menu
				e.menu = nil
				stack[0] = api.EncodeI32(int32(e.cb.OnShowMenu(ctx, items)))
			}, nil, types(i32)),
		)
	default:
		funcs = append(funcs, fn("on_show_menu", func(ctx context.Context, m api.Module, stack []uint64) {
			items, err := readMenu(m.Memory(), uint32(stack[0]), uint32(stack[1]))
			if err != nil {
				Logger().Warn("bad menu from engine", zap.Error(err))
				stack[0] = api.EncodeI32(-1)
				return
			}
			stack[0] = api.EncodeI32(int32(e.cb.OnShowMenu(ctx, items)))
		}, types(i32, i32), types(i32)))
	}

	if e.variant.Handoff == HandoffDescriptor {
		funcs = append(funcs,
			fn("fd_read", func(_ context.Context, m api.Module, stack []uint64) {
				stack[0] = api.EncodeI32(e.fdRead(m, resource.Descriptor(stack[0]), uint32(stack[1]), uint32(stack[2])))
			}, types(i32, i32, i32), types(i32)),
			fn("fd_write", func(_ context.Context, m api.Module, stack []uint64) {
				stack[0] = api.EncodeI32(e.fdWrite(m, resource.Descriptor(stack[0]), uint32(stack[1]), uint32(stack[2])))
			}, types(i32, i32, i32), types(i32)),
		)
	}

	return funcs
}

// fdRead fills up to capacity bytes at buf from descriptor d. It returns the
// byte count, 0 at end of stream, or -1 on error.
func (e *Engine) fdRead(m api.Module, d resource.Descriptor, buf, capacity uint32) int32 {
	r, ok := e.fds.Reader(d)
	if !ok {
		return -1
	}
	if capacity == 0 {
		return 0
	}
	chunk := make([]byte, capacity)
	n, err := io.ReadFull(r, chunk)
	if n == 0 && err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		Logger().Warn("descriptor read failed", zap.Uint32("fd", uint32(d)), zap.Error(err))
		return -1
	}
	if err := writeBytes(m.Memory(), buf, chunk[:n]); err != nil {
		return -1
	}
	return int32(n)
}

// fdWrite copies length bytes at ptr to descriptor d and returns the byte
// count or -1.
func (e *Engine) fdWrite(m api.Module, d resource.Descriptor, ptr, length uint32) int32 {
	w, ok := e.fds.Writer(d)
	if !ok {
		return -1
	}
	data, err := readBytes(m.Memory(), ptr, length)
	if err != nil {
		return -1
	}
	n, err := w.Write(data)
	if err != nil {
		Logger().Warn("descriptor write failed", zap.Uint32("fd", uint32(d)), zap.Error(err))
		return -1
	}
	return int32(n)
}
