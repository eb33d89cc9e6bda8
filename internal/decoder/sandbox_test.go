package decoder

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSandbox() *Sandbox {
	return NewSandbox(Limits{
		MaxScriptBytes: 50 * 1024,
		MaxOutputBytes: 50 * 1024,
		Timeout:        500 * time.Millisecond,
	}, time.Minute, 10)
}

const tempHumScript = `
function Decoder(bytes, port) {
	return {
		temperature: (bytes[0] << 8 | bytes[1]) / 100,
		humidity: bytes[2],
		port: port
	};
}
`

func TestSandboxExecute(t *testing.T) {
	s := newTestSandbox()

	// 0x0899 = 2201 -> 22.01
	result, err := s.Execute("cat-1", 1, tempHumScript, []byte{0x08, 0x99, 0x37}, 2)
	require.NoError(t, err)
	assert.False(t, result.Truncated)

	assert.InDelta(t, 22.01, result.Fields["temperature"].(float64), 1e-9)
	assert.EqualValues(t, 0x37, result.Fields["humidity"])
	assert.EqualValues(t, 2, result.Fields["port"])
}

func TestSandboxScriptTooLarge(t *testing.T) {
	s := newSandboxWithLimits(Limits{
		MaxScriptBytes: 64,
		MaxOutputBytes: 50 * 1024,
		Timeout:        500 * time.Millisecond,
	})

	_, err := s.Execute("cat-1", 1, strings.Repeat("/", 65), nil, 1)
	assert.ErrorIs(t, err, ErrScriptTooLarge)
}

func newSandboxWithLimits(limits Limits) *Sandbox {
	return NewSandbox(limits, time.Minute, 10)
}

func TestSandboxMissingDecoderFunction(t *testing.T) {
	s := newTestSandbox()

	_, err := s.Execute("cat-1", 1, `var x = 1;`, []byte{0x01}, 1)
	assert.ErrorIs(t, err, ErrNoDecoderFunc)
}

func TestSandboxNonObjectReturn(t *testing.T) {
	s := newTestSandbox()

	_, err := s.Execute("cat-1", 1, `function Decoder(bytes, port) { return 42; }`, []byte{0x01}, 1)
	assert.ErrorIs(t, err, ErrNotAnObject)
}

func TestSandboxScriptError(t *testing.T) {
	s := newTestSandbox()

	_, err := s.Execute("cat-1", 1, `function Decoder(bytes, port) { throw new Error("boom"); }`, []byte{0x01}, 1)
	assert.Error(t, err)
}

func TestSandboxCompileError(t *testing.T) {
	s := newTestSandbox()

	_, err := s.Execute("cat-1", 1, `function Decoder( {`, []byte{0x01}, 1)
	assert.Error(t, err)
}

func TestSandboxInfiniteLoopInterrupted(t *testing.T) {
	s := newSandboxWithLimits(Limits{
		MaxScriptBytes: 50 * 1024,
		MaxOutputBytes: 50 * 1024,
		Timeout:        50 * time.Millisecond,
	})

	start := time.Now()
	_, err := s.Execute("cat-1", 1, `function Decoder(bytes, port) { while (true) {} }`, []byte{0x01}, 1)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestSandboxOversizeOutputFlagged(t *testing.T) {
	s := newSandboxWithLimits(Limits{
		MaxScriptBytes: 50 * 1024,
		MaxOutputBytes: 128,
		Timeout:        500 * time.Millisecond,
	})

	script := `
function Decoder(bytes, port) {
	var out = { temperature: 21.5 };
	for (var i = 0; i < 100; i++) {
		out["field_" + i] = "xxxxxxxxxxxxxxxx";
	}
	return out;
}
`

	result, err := s.Execute("cat-1", 1, script, []byte{0x01}, 1)
	require.NoError(t, err)
	assert.True(t, result.Truncated)

	// Fields stay available for in-request extraction.
	assert.InDelta(t, 21.5, result.Fields["temperature"].(float64), 1e-9)
}

func TestSandboxRevisionInvalidatesCache(t *testing.T) {
	s := newTestSandbox()

	v1 := `function Decoder(bytes, port) { return { rev: 1 }; }`
	v2 := `function Decoder(bytes, port) { return { rev: 2 }; }`

	result, err := s.Execute("cat-1", 1, v1, []byte{0x01}, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, result.Fields["rev"])

	// Same catalog id, bumped revision: the new script must run, not the
	// cached compilation.
	result, err = s.Execute("cat-1", 2, v2, []byte{0x01}, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, result.Fields["rev"])
}

func TestSandboxFrameBytesArePlainInts(t *testing.T) {
	s := newTestSandbox()

	script := `
function Decoder(bytes, port) {
	var sum = 0;
	for (var i = 0; i < bytes.length; i++) {
		sum += bytes[i];
	}
	return { sum: sum, len: bytes.length };
}
`

	result, err := s.Execute("cat-1", 1, script, []byte{1, 2, 3, 250}, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 256, result.Fields["sum"])
	assert.EqualValues(t, 4, result.Fields["len"])
}
