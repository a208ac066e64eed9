package native

import (
	"context"
	"encoding/binary"
	"io"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	"github.com/wippyai/qsp-runtime/adapter"
	"github.com/wippyai/qsp-runtime/errors"
	"github.com/wippyai/qsp-runtime/resource"
	"github.com/wippyai/qsp-runtime/state"
)

// Config holds per-engine runtime limits.
type Config struct {
	// Stderr receives the guest's stderr. Nil discards it.
	Stderr io.Writer

	// MemoryLimitPages caps guest memory in 64KiB pages. 0 keeps the
	// wazero default.
	MemoryLimitPages uint32
}

// Engine runs one interpreter variant compiled to WebAssembly. It is not safe
// for concurrent use; the adapter calls it from the engine thread only.
type Engine struct {
	cb      adapter.Callbacks
	runtime wazero.Runtime
	module  api.Module
	guest   *guest
	fds     *resource.Table
	funcs   map[string]api.Function
	fault   error
	initErr error
	cfg     Config
	wasm    []byte
	menu    []state.Item
	variant Variant
}

var _ adapter.RawEngine = (*Engine)(nil)

// New creates an engine for variant v from the module bytes. Nothing is
// compiled until Init.
func New(v Variant, wasm []byte, cfg Config) *Engine {
	return &Engine{variant: v, wasm: wasm, cfg: cfg}
}

func (e *Engine) Variant() Variant { return e.variant }

func (e *Engine) Bind(cb adapter.Callbacks) { e.cb = cb }

// Init compiles and instantiates the module. Every required export is checked
// before instantiation; a missing one fails with KindMissingExport.
func (e *Engine) Init(ctx context.Context) error {
	if e.cb == nil {
		e.initErr = errors.NotInitialized(errors.PhaseEngine, "engine callbacks")
		return e.initErr
	}
	e.Terminate(ctx)

	rc := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if e.cfg.MemoryLimitPages > 0 {
		rc = rc.WithMemoryLimitPages(e.cfg.MemoryLimitPages)
	}
	r := wazero.NewRuntimeWithConfig(ctx, rc)

	if err := e.instantiate(ctx, r); err != nil {
		_ = r.Close(ctx)
		e.module, e.guest, e.funcs = nil, nil, nil
		e.initErr = err
		return err
	}
	e.runtime = r

	Logger().Info("engine initialised", zap.String("variant", e.variant.Name))
	return nil
}

func (e *Engine) instantiate(ctx context.Context, r wazero.Runtime) error {
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		return errors.Instantiation(err)
	}
	if err := e.instantiateHost(ctx, r); err != nil {
		return errors.Instantiation(err)
	}

	compiled, err := r.CompileModule(ctx, e.wasm)
	if err != nil {
		return errors.LoadFailure(errors.PhaseLoad, "compile "+e.variant.Name+" engine", err)
	}
	if err := checkExports(e.variant, compiled); err != nil {
		return err
	}

	mc := wazero.NewModuleConfig().
		WithName(e.variant.Name).
		WithStartFunctions("_initialize")
	if e.cfg.Stderr != nil {
		mc = mc.WithStderr(e.cfg.Stderr)
	}
	mod, err := r.InstantiateModule(ctx, compiled, mc)
	if err != nil {
		return errors.Instantiation(err)
	}

	e.module = mod
	e.fds = resource.NewTable()
	e.fds.Subscribe(fdLog{name: e.variant.Name})
	e.guest = &guest{
		mem:   mod.ExportedMemory(exportMemory),
		alloc: mod.ExportedFunction(exportAlloc),
		free:  mod.ExportedFunction(exportFree),
	}
	e.funcs = make(map[string]api.Function)
	for _, name := range append(e.variant.required(), e.variant.Exports.Init, e.variant.Exports.Terminate) {
		if name == "" || name == exportMemory {
			continue
		}
		if f := mod.ExportedFunction(name); f != nil {
			e.funcs[name] = f
		}
	}

	if name := e.variant.Exports.Init; e.funcs[name] != nil {
		if _, err := e.funcs[name].Call(ctx); err != nil {
			return errors.Instantiation(err)
		}
	}
	return nil
}

// fdLog traces descriptor hand-offs at debug level.
type fdLog struct{ name string }

func (l fdLog) OnResourceEvent(ev resource.Event) {
	op := "created"
	if ev.Type == resource.EventDropped {
		op = "dropped"
	}
	Logger().Debug("descriptor "+op,
		zap.String("variant", l.name),
		zap.Uint32("fd", uint32(ev.Descriptor)),
		zap.Stringer("kind", ev.Kind))
}

// checkExports reports the first required export the compiled module lacks.
func checkExports(v Variant, compiled wazero.CompiledModule) error {
	memories := compiled.ExportedMemories()
	funcs := compiled.ExportedFunctions()
	for _, name := range v.required() {
		if name == exportMemory {
			if _, ok := memories[name]; !ok {
				return errors.MissingExport(v.Name, name)
			}
			continue
		}
		if _, ok := funcs[name]; !ok {
			return errors.MissingExport(v.Name, name)
		}
	}
	return nil
}

// Terminate shuts the interpreter down and releases the runtime. It also
// forgets a failed Init.
func (e *Engine) Terminate(ctx context.Context) {
	e.initErr = nil
	if e.runtime == nil {
		return
	}
	if name := e.variant.Exports.Terminate; e.funcs[name] != nil {
		if _, err := e.funcs[name].Call(ctx); err != nil {
			Logger().Warn("engine terminate failed", zap.String("variant", e.variant.Name), zap.Error(err))
		}
	}
	if err := e.runtime.Close(ctx); err != nil {
		Logger().Warn("runtime close failed", zap.Error(err))
	}
	if e.fds != nil {
		_ = e.fds.Close()
	}
	e.runtime, e.module, e.guest, e.funcs, e.fds = nil, nil, nil, nil, nil
	e.menu, e.fault = nil, nil
}

const (
	noRefresh uint64 = 0
	refresh   uint64 = 1
)

func (e *Engine) call(ctx context.Context, name string, args ...uint64) ([]uint64, bool) {
	if e.module == nil {
		return nil, false
	}
	f := e.funcs[name]
	if f == nil {
		e.fault = errors.MissingExport(e.variant.Name, name)
		return nil, false
	}
	res, err := f.Call(ctx, args...)
	if err != nil {
		Logger().Error("engine call failed",
			zap.String("variant", e.variant.Name),
			zap.String("func", name),
			zap.Error(err))
		e.fault = err
		return nil, false
	}
	return res, true
}

func (e *Engine) callBool(ctx context.Context, name string, args ...uint64) bool {
	res, ok := e.call(ctx, name, args...)
	return ok && len(res) > 0 && api.DecodeI32(res[0]) != 0
}

func (e *Engine) callInt(ctx context.Context, name string, args ...uint64) (int, bool) {
	res, ok := e.call(ctx, name, args...)
	if !ok || len(res) == 0 {
		return 0, false
	}
	return int(api.DecodeI32(res[0])), true
}

func (e *Engine) callString(ctx context.Context, name string, args ...uint64) string {
	res, ok := e.call(ctx, name, args...)
	if !ok || len(res) == 0 {
		return ""
	}
	b, err := e.guest.take(ctx, res[0])
	if err != nil {
		e.fault = err
		return ""
	}
	return string(b)
}

// withBytes copies data into the guest for the duration of fn.
func (e *Engine) withBytes(ctx context.Context, data []byte, fn func(ptr, n uint32) bool) bool {
	if e.module == nil {
		return false
	}
	ptr, n, err := e.guest.put(ctx, data)
	if err != nil {
		e.fault = err
		return false
	}
	defer e.guest.release(ctx, ptr, n)
	return fn(ptr, n)
}

func (e *Engine) withString(ctx context.Context, s string, fn func(ptr, n uint32) bool) bool {
	return e.withBytes(ctx, []byte(s), fn)
}

// withReader exposes r as a descriptor for the duration of fn.
func (e *Engine) withReader(r io.Reader, fn func(fd resource.Descriptor) bool) bool {
	if e.module == nil {
		return false
	}
	fd, err := e.fds.InsertReader(r)
	if err != nil {
		e.fault = err
		return false
	}
	defer e.fds.Remove(fd)
	return fn(fd)
}

func (e *Engine) withWriter(w io.Writer, fn func(fd resource.Descriptor) bool) bool {
	if e.module == nil {
		return false
	}
	fd, err := e.fds.InsertWriter(w)
	if err != nil {
		e.fault = err
		return false
	}
	defer e.fds.Remove(fd)
	return fn(fd)
}

func (e *Engine) LoadGameWorld(ctx context.Context, f adapter.GameFile) bool {
	name := e.variant.Exports.LoadGameWorld
	isNew := boolResult(f.IsNewGame)

	if e.variant.Handoff == HandoffDescriptor {
		return e.withReader(f.Data, func(fd resource.Descriptor) bool {
			return e.callBool(ctx, name, uint64(fd), isNew)
		})
	}

	data, ok := e.readAll(f.Data)
	if !ok {
		return false
	}
	return e.withBytes(ctx, data, func(ptr, n uint32) bool {
		if e.variant.Handoff == HandoffNamedBytes {
			return e.withString(ctx, f.Name, func(nptr, nn uint32) bool {
				return e.callBool(ctx, name, uint64(ptr), uint64(n), uint64(nptr), uint64(nn))
			})
		}
		return e.callBool(ctx, name, uint64(ptr), uint64(n), isNew)
	})
}

func (e *Engine) OpenSavedGame(ctx context.Context, f adapter.GameFile) bool {
	name := e.variant.Exports.OpenSavedGame

	if e.variant.Handoff == HandoffDescriptor {
		return e.withReader(f.Data, func(fd resource.Descriptor) bool {
			return e.callBool(ctx, name, uint64(fd), refresh)
		})
	}

	data, ok := e.readAll(f.Data)
	if !ok {
		return false
	}
	return e.withBytes(ctx, data, func(ptr, n uint32) bool {
		return e.callBool(ctx, name, uint64(ptr), uint64(n), refresh)
	})
}

func (e *Engine) SaveGame(ctx context.Context, w io.Writer) bool {
	name := e.variant.Exports.SaveGame

	if e.variant.Handoff == HandoffDescriptor {
		return e.withWriter(w, func(fd resource.Descriptor) bool {
			return e.callBool(ctx, name, uint64(fd), noRefresh)
		})
	}

	res, ok := e.call(ctx, name, noRefresh)
	if !ok || len(res) == 0 || res[0] == 0 {
		return false
	}
	data, err := e.guest.take(ctx, res[0])
	if err != nil {
		e.fault = err
		return false
	}
	if _, err := w.Write(data); err != nil {
		e.fault = errors.Wrap(errors.PhaseSave, errors.KindInvalidData, err, "write saved state")
		return false
	}
	return true
}

func (e *Engine) readAll(r io.Reader) ([]byte, bool) {
	if e.module == nil {
		return nil, false
	}
	data, err := io.ReadAll(r)
	if err != nil {
		e.fault = errors.LoadFailure(errors.PhaseLoad, "read engine input", err)
		return nil, false
	}
	return data, true
}

func (e *Engine) RestartGame(ctx context.Context) bool {
	return e.callBool(ctx, e.variant.Exports.RestartGame, refresh)
}

func (e *Engine) SetSelectedAction(ctx context.Context, index int) bool {
	return e.callBool(ctx, e.variant.Exports.SetSelectedAction, api.EncodeI32(int32(index)), noRefresh)
}

func (e *Engine) ExecSelectedAction(ctx context.Context) bool {
	return e.callBool(ctx, e.variant.Exports.ExecSelectedAction, refresh)
}

func (e *Engine) SetSelectedObject(ctx context.Context, index int) bool {
	return e.callBool(ctx, e.variant.Exports.SetSelectedObject, api.EncodeI32(int32(index)), refresh)
}

func (e *Engine) SetInputText(ctx context.Context, text string) {
	e.withString(ctx, text, func(ptr, n uint32) bool {
		_, ok := e.call(ctx, e.variant.Exports.SetInputText, uint64(ptr), uint64(n))
		return ok
	})
}

func (e *Engine) ExecUserInput(ctx context.Context) bool {
	return e.callBool(ctx, e.variant.Exports.ExecUserInput, refresh)
}

func (e *Engine) ExecString(ctx context.Context, code string) bool {
	return e.withString(ctx, code, func(ptr, n uint32) bool {
		return e.callBool(ctx, e.variant.Exports.ExecString, uint64(ptr), uint64(n), refresh)
	})
}

func (e *Engine) ExecCounter(ctx context.Context) bool {
	return e.callBool(ctx, e.variant.Exports.ExecCounter, refresh)
}

func (e *Engine) MainDesc(ctx context.Context) string {
	return e.callString(ctx, e.variant.Exports.MainDesc)
}

func (e *Engine) VarsDesc(ctx context.Context) string {
	return e.callString(ctx, e.variant.Exports.VarsDesc)
}

func (e *Engine) Actions(ctx context.Context) []state.Item {
	x := e.variant.Exports
	return e.items(ctx, x.ActionsCount, x.ActionText, x.ActionImage)
}

func (e *Engine) Objects(ctx context.Context) []state.Item {
	x := e.variant.Exports
	return e.items(ctx, x.ObjectsCount, x.ObjectText, x.ObjectImage)
}

func (e *Engine) items(ctx context.Context, count, text, image string) []state.Item {
	n, ok := e.callInt(ctx, count)
	if !ok || n <= 0 {
		return nil
	}
	items := make([]state.Item, n)
	for i := range items {
		idx := api.EncodeI32(int32(i))
		items[i] = state.Item{
			Text:  e.callString(ctx, text, idx),
			Image: e.callString(ctx, image, idx),
		}
	}
	return items
}

func (e *Engine) NumVar(ctx context.Context, name string) (int64, bool) {
	var (
		value int64
		found bool
	)
	get := e.variant.Exports.NumVar
	e.withString(ctx, name, func(ptr, n uint32) bool {
		if e.variant.Vars == VarPlain {
			res, ok := e.call(ctx, get, uint64(ptr), uint64(n), 0)
			if ok && len(res) > 0 {
				value, found = int64(res[0]), true
			}
			return ok
		}
		return e.withBytes(ctx, make([]byte, 8), func(out, _ uint32) bool {
			if !e.callBool(ctx, get, uint64(ptr), uint64(n), 0, uint64(out)) {
				return false
			}
			b, err := readBytes(e.guest.mem, out, 8)
			if err != nil {
				e.fault = err
				return false
			}
			value, found = int64(binary.LittleEndian.Uint64(b)), true
			return true
		})
	})
	return value, found
}

func (e *Engine) LastError(ctx context.Context) *errors.ScriptError {
	fault := e.fault
	e.fault = nil

	if e.module == nil {
		if e.initErr != nil {
			return errors.Script("engine init failed", e.initErr)
		}
		return nil
	}

	var se *errors.ScriptError
	if e.variant.Errors == ErrorRecord {
		se = e.errorRecord(ctx)
	} else {
		se = e.errorFields(ctx)
	}
	if se == nil && fault != nil {
		se = errors.Script("engine call failed", fault)
	}
	// faults raised while reading the report are not carried to the next call
	e.fault = nil
	return se
}

func (e *Engine) errorFields(ctx context.Context) *errors.ScriptError {
	x := e.variant.Exports
	code, ok := e.callInt(ctx, x.ErrorNum)
	if !ok || code == 0 {
		return nil
	}
	action, _ := e.callInt(ctx, x.ErrorAction)
	line, _ := e.callInt(ctx, x.ErrorLine)
	return &errors.ScriptError{
		Code:        code,
		Location:    e.callString(ctx, x.ErrorLocation),
		Action:      action,
		Line:        line,
		Description: e.callString(ctx, x.ErrorDesc, api.EncodeI32(int32(code))),
	}
}

// errorRecord reads the nullable error record. The location string it points
// at stays owned by the guest.
func (e *Engine) errorRecord(ctx context.Context) *errors.ScriptError {
	x := e.variant.Exports
	var se *errors.ScriptError
	e.withBytes(ctx, make([]byte, errorRecordSize), func(out, _ uint32) bool {
		if !e.callBool(ctx, x.ErrorRecord, uint64(out)) {
			return false
		}
		rec, err := readBytes(e.guest.mem, out, errorRecordSize)
		if err != nil {
			return false
		}
		code := int(int32(binary.LittleEndian.Uint32(rec[0:])))
		if code == 0 {
			return false
		}
		loc, _ := readString(e.guest.mem, binary.LittleEndian.Uint32(rec[12:]), binary.LittleEndian.Uint32(rec[16:]))
		se = &errors.ScriptError{
			Code:     code,
			Action:   int(int32(binary.LittleEndian.Uint32(rec[4:]))),
			Line:     int(int32(binary.LittleEndian.Uint32(rec[8:]))),
			Location: loc,
		}
		return true
	})
	if se != nil {
		se.Description = e.callString(ctx, x.ErrorDesc, api.EncodeI32(int32(se.Code)))
	}
	return se
}
