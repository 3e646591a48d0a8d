package ui

import (
	"bytes"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevOut, prevErr, prevNoColor := stdout, stderr, color.NoColor
	stdout, stderr = &buf, &buf
	color.NoColor = true
	t.Cleanup(func() {
		stdout, stderr, color.NoColor = prevOut, prevErr, prevNoColor
	})
	return &buf
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{250 * time.Millisecond, "250ms"},
		{5 * time.Second, "5s"},
		{90 * time.Second, "1m 30s"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1h 2m 3s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDuration(tt.in))
	}
}

func TestTable_AlignsColumns(t *testing.T) {
	buf := capture(t)

	Table([]string{"ID", "Label"}, [][]string{
		{"fig-0", "Scheme 1"},
		{"fig-10", "Table 2"},
	})

	assert.Equal(t, "ID      Label\n--      -----\nfig-0   Scheme 1\nfig-10  Table 2\n", buf.String())
}

func TestMessages(t *testing.T) {
	buf := capture(t)

	Success("loaded %d pages", 3)
	Error("page %d failed", 2)
	Section("Figures")

	out := buf.String()
	assert.Contains(t, out, "✓ loaded 3 pages\n")
	assert.Contains(t, out, "✗ page 2 failed\n")
	assert.Contains(t, out, "Figures\n=======\n")
}

func TestDebug_OnlyWhenVerbose(t *testing.T) {
	buf := capture(t)
	t.Cleanup(func() { verboseFlag = false })

	InitUI(true, false)
	Debug("hidden")
	assert.Empty(t, buf.String())

	InitUI(true, true)
	Debug("shown")
	assert.Contains(t, buf.String(), "shown")
}
