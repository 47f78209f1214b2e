package ui

import (
	"bytes"
	"errors"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/muurk/scenebridge/internal/discovery"
	"github.com/muurk/scenebridge/internal/journal"
	"github.com/muurk/scenebridge/internal/protocol"
	"github.com/muurk/scenebridge/internal/remote"
)

func TestNewResponseResultSuccess(t *testing.T) {
	resp := protocol.Success(map[string]any{
		"name":     "Cube",
		"type":     "MESH",
		"location": []any{0.0, 0.0, 1.0},
	})

	r := NewResponseResult("create_object", resp, 12*time.Millisecond)

	if r.Type != ResultSuccess {
		t.Fatalf("Type = %v, want ResultSuccess", r.Type)
	}
	want := []Param{{"name", "Cube"}, {"type", "MESH"}, {"Duration", "12ms"}}
	assert.Equal(t, want, r.Details)
	assert.Contains(t, r.Body, `"location"`)

	out := r.SetWidth(80).Render()
	assert.Contains(t, out, "SUCCESS")
	assert.Contains(t, out, "create_object")
	assert.Contains(t, out, "Cube")
}

func TestNewResponseResultFailure(t *testing.T) {
	resp := protocol.Failure("Object 'Cube' not found")

	r := NewResponseResult("delete_object", resp, time.Millisecond)

	if r.Type != ResultFailure {
		t.Fatalf("Type = %v, want ResultFailure", r.Type)
	}
	assert.EqualError(t, r.Error, "Object 'Cube' not found")
	assert.Contains(t, r.SetWidth(80).Render(), "FAILED")
}

func TestNewResponseResultScalar(t *testing.T) {
	r := NewResponseResult("list_things", protocol.Success([]any{"a", "b"}), 0)
	assert.Empty(t, r.Details[:len(r.Details)-1])
	assert.Contains(t, r.Body, `"a"`)
}

func TestNewErrorResult(t *testing.T) {
	err := remote.Classify(syscall.ECONNREFUSED, "scenebridge server")

	r := NewErrorResult("get_scene_info", err)

	assert.Equal(t, ResultFailure, r.Type)
	assert.Contains(t, r.Error.Error(), "refused connection")
	assert.Contains(t, r.Troubleshooting, "Start it with: scenebridge serve")
}

func TestHintLines(t *testing.T) {
	tests := []struct {
		name string
		hint string
		want []string
	}{
		{"bullets", "Intro\nTroubleshooting:\n  • one\n  • two", []string{"one", "two"}},
		{"plain", "Try again later.", []string{"Try again later."}},
		{"empty", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, hintLines(tt.hint))
		})
	}
}

func TestHeaderKeepsParamOrder(t *testing.T) {
	h := NewHeader("scenebridge server", "scenebridge serve",
		Param{"Address", "localhost:9876"},
		Param{"Features", "none"},
	).SetWidth(80)

	out := h.Render()
	assert.Contains(t, out, "SCENEBRIDGE SERVER")
	assert.Less(t, strings.Index(out, "Address"), strings.Index(out, "Features"))
}

func TestTableTruncatesLastColumn(t *testing.T) {
	tbl := &Table{
		Headers: []string{"A", "MESSAGE"},
		Rows:    [][]string{{"1", strings.Repeat("x", 200)}},
		Width:   60,
	}
	out := tbl.Render()
	assert.Contains(t, out, "…")
	for _, line := range strings.Split(out, "\n") {
		assert.LessOrEqual(t, len([]rune(line)), 60)
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab…", truncate("abcdef", 3))
	assert.Equal(t, "a", truncate("abcdef", 1))
}

func TestRenderHistory(t *testing.T) {
	assert.Contains(t, RenderHistory(nil), "No commands recorded")

	out := RenderHistory([]journal.Entry{
		{ID: 2, Time: time.Now(), Transport: "tcp", Type: "delete_object", Status: "error", Message: "Object 'Cube' not found"},
		{ID: 1, Time: time.Now(), Transport: "ws", Type: "get_scene_info", Status: "success", DurationMs: 1.25},
	})
	assert.Contains(t, out, "delete_object")
	assert.Contains(t, out, FailureMarker)
	assert.Contains(t, out, SuccessMarker)
	assert.Less(t, strings.Index(out, "delete_object"), strings.Index(out, "get_scene_info"))
}

func TestRenderInstances(t *testing.T) {
	assert.Contains(t, RenderInstances(nil), "No scenebridge servers")

	out := RenderInstances([]*discovery.Instance{
		{Name: "studio", Hostname: "studio.local.", IP: "192.168.1.20", Port: 9876, Version: "1.0.0"},
	})
	assert.Contains(t, out, "192.168.1.20:9876")
	assert.Contains(t, out, "studio.local")
	assert.NotContains(t, out, "studio.local.")
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"I AGREE\n", true},
		{"  I AGREE  \n", true},
		{"yes\n", false},
		{"", false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		got := Confirm(strings.NewReader(tt.input), &out, "TEST", []string{"careful"}, "")
		if got != tt.want {
			t.Errorf("Confirm(%q) = %v, want %v", tt.input, got, tt.want)
		}
		assert.Contains(t, out.String(), "WARNING")
	}
}

func TestConfirmRemoteExposure(t *testing.T) {
	var out bytes.Buffer
	ok := ConfirmRemoteExposure(strings.NewReader("no\n"), &out, "0.0.0.0:9876")
	assert.False(t, ok)
	assert.Contains(t, out.String(), "0.0.0.0:9876")
	assert.Contains(t, out.String(), "cancelled")
}

func TestScalar(t *testing.T) {
	tests := []struct {
		in   any
		want string
		ok   bool
	}{
		{"x", "x", true},
		{true, "true", true},
		{1.5, "1.5", true},
		{nil, "null", true},
		{[]any{1.0}, "", false},
		{errors.New("x"), "", false},
	}
	for _, tt := range tests {
		got, ok := scalar(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("scalar(%v) = %q, %v, want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
