package decoder

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"
	"github.com/rs/zerolog/log"
)

// Guardrail errors. Every failure here is recoverable by the caller: a
// decoder problem must never abort the surrounding request.
var (
	ErrScriptTooLarge = errors.New("decoder script exceeds size limit")
	ErrOutputTooLarge = errors.New("decoder output exceeds size limit")
	ErrNoDecoderFunc  = errors.New("script does not define a Decoder function")
	ErrNotAnObject    = errors.New("decoder did not return an object")
)

// Limits bounds untrusted decoder execution.
type Limits struct {
	MaxScriptBytes int
	MaxOutputBytes int
	Timeout        time.Duration
}

// Result is the outcome of one sandboxed decoder run.
type Result struct {
	Fields map[string]interface{}

	// Truncated is set when the output exceeded the size ceiling. Fields is
	// still populated for in-request extraction, but the snapshot must not
	// be persisted whole.
	Truncated bool
}

// Sandbox executes vendor-supplied decoder scripts in an isolated goja VM
// with no ambient capabilities beyond the frame bytes and port.
type Sandbox struct {
	limits Limits
	cache  *programCache
}

// NewSandbox creates a sandbox with the given limits and a program cache
// with the given TTL and size bound.
func NewSandbox(limits Limits, cacheTTL time.Duration, cacheMaxEntries int) *Sandbox {
	return &Sandbox{
		limits: limits,
		cache:  newProgramCache(cacheTTL, cacheMaxEntries),
	}
}

// Execute compiles (or reuses a cached compilation of) the script identified
// by catalogID/revision and calls its Decoder(bytes, port) function. The run
// is interrupted after the configured wall-clock budget.
func (s *Sandbox) Execute(catalogID string, revision int, script string, frame []byte, port int) (*Result, error) {
	if len(script) > s.limits.MaxScriptBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrScriptTooLarge, len(script))
	}

	program, err := s.cache.get(catalogID, revision, script)
	if err != nil {
		return nil, fmt.Errorf("compile decoder: %w", err)
	}

	vm := goja.New()

	timer := time.AfterFunc(s.limits.Timeout, func() {
		vm.Interrupt("decoder wall-clock budget exceeded")
	})
	defer timer.Stop()

	if _, err := vm.RunProgram(program); err != nil {
		return nil, fmt.Errorf("run decoder script: %w", err)
	}

	fn, ok := goja.AssertFunction(vm.Get("Decoder"))
	if !ok {
		return nil, ErrNoDecoderFunc
	}

	byteValues := make([]interface{}, len(frame))
	for i, b := range frame {
		byteValues[i] = int(b)
	}

	value, err := fn(goja.Undefined(), vm.ToValue(byteValues), vm.ToValue(port))
	if err != nil {
		return nil, fmt.Errorf("call decoder: %w", err)
	}

	fields, ok := value.Export().(map[string]interface{})
	if !ok {
		return nil, ErrNotAnObject
	}

	serialized, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("serialize decoder output: %w", err)
	}
	if len(serialized) > s.limits.MaxOutputBytes {
		log.Warn().
			Str("catalog_id", catalogID).
			Int("bytes", len(serialized)).
			Msg("decoder output exceeds size ceiling, flagging as truncated")
		return &Result{Fields: fields, Truncated: true}, nil
	}

	return &Result{Fields: fields}, nil
}
