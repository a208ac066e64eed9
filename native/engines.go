package native

import (
	"context"
	"os"
	"path/filepath"

	"github.com/tetratelabs/wazero"

	"github.com/wippyai/qsp-runtime/adapter"
	"github.com/wippyai/qsp-runtime/errors"
	"github.com/wippyai/qsp-runtime/state"
)

// Engines creates one engine per selector that has module bytes.
func Engines(modules map[state.Selector][]byte, cfg Config) map[state.Selector]adapter.RawEngine {
	out := make(map[state.Selector]adapter.RawEngine, len(modules))
	for sel, wasm := range modules {
		v, ok := Variants[sel]
		if !ok || len(wasm) == 0 {
			continue
		}
		out[sel] = New(v, wasm, cfg)
	}
	return out
}

// LoadModules reads <dir>/<variant>.wasm for every variant. Missing files are
// skipped; other read errors are returned.
func LoadModules(dir string) (map[state.Selector][]byte, error) {
	modules := make(map[state.Selector][]byte)
	for _, sel := range state.Selectors {
		path := filepath.Join(dir, sel.String()+".wasm")
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, errors.New(errors.PhaseLoad, errors.KindLoadFailure).
				Path(path).Detail("read engine module").Cause(err).Build()
		}
		modules[sel] = data
	}
	return modules, nil
}

// Check compiles wasm and verifies it exports everything v requires,
// without instantiating it.
func Check(ctx context.Context, v Variant, wasm []byte) error {
	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)

	compiled, err := r.CompileModule(ctx, wasm)
	if err != nil {
		return errors.LoadFailure(errors.PhaseLoad, "compile "+v.Name+" engine", err)
	}
	return checkExports(v, compiled)
}
