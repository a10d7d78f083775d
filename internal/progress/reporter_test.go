package progress

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewReporter_CI(t *testing.T) {
	t.Setenv("CI", "true")
	var buf bytes.Buffer
	r := NewReporter(&buf)
	_, ok := r.(*CIReporter)
	assert.True(t, ok)

	r.Start(2)
	r.Update(1, "druki/123.json")
	r.Update(2, "tematy/zdrowie.md")
	r.Finish()

	assert.Equal(t, "Loading 2 source files\n[1/2] druki/123.json\n[2/2] tematy/zdrowie.md\nSource files loaded\n", buf.String())
}

func TestNewReporter_Terminal(t *testing.T) {
	t.Setenv("CI", "")
	t.Setenv("GITHUB_ACTIONS", "")
	var buf bytes.Buffer
	r := NewReporter(&buf)
	tr, ok := r.(*TerminalReporter)
	assert.True(t, ok)

	// Update before Start must not panic.
	tr.Update(1, "x")
	r.Start(1)
	r.Update(1, "druki/123.json")
	r.Finish()
}

func TestNop(t *testing.T) {
	var r Reporter = Nop{}
	r.Start(1)
	r.Update(1, "x")
	r.Finish()
}
