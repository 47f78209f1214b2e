package protocol

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantN   int
		wantErr error
		malform bool
	}{
		{name: "complete object", input: `{"type":"a"}`, want: `{"type":"a"}`, wantN: 12},
		{name: "leading whitespace", input: "  \n{\"type\":\"a\"}", want: `{"type":"a"}`, wantN: 15},
		{name: "trailing bytes kept", input: `{"type":"a"}{"type"`, want: `{"type":"a"}`, wantN: 12},
		{name: "truncated object", input: `{"type":"get_sc`, wantErr: ErrIncomplete},
		{name: "truncated literal", input: `tru`, wantErr: ErrIncomplete},
		{name: "empty", input: "", wantErr: ErrIncomplete},
		{name: "whitespace only", input: " \r\n\t", wantErr: ErrIncomplete},
		{name: "garbage", input: `hello`, malform: true},
		{name: "bad token inside object", input: `{"type": x}`, malform: true},
		{name: "stray closing brace", input: `}`, malform: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, n, err := Decode([]byte(tt.input))
			if tt.malform {
				var me *MalformedError
				if !errors.As(err, &me) {
					t.Fatalf("Decode() error = %v, want *MalformedError", err)
				}
				return
			}
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Decode() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode() unexpected error: %v", err)
			}
			if string(raw) != tt.want {
				t.Errorf("Decode() raw = %s, want %s", raw, tt.want)
			}
			if n != tt.wantN {
				t.Errorf("Decode() n = %d, want %d", n, tt.wantN)
			}
		})
	}
}

func TestDecoderSplitAcrossReads(t *testing.T) {
	msg := `{"type":"get_scene_info","params":{}}`
	d := NewDecoder(0)

	for i := 0; i < len(msg)-1; i++ {
		if err := d.Feed([]byte{msg[i]}); err != nil {
			t.Fatalf("Feed() error: %v", err)
		}
		if _, err := d.Next(); !errors.Is(err, ErrIncomplete) {
			t.Fatalf("Next() after %d bytes error = %v, want ErrIncomplete", i+1, err)
		}
	}

	if err := d.Feed([]byte{msg[len(msg)-1]}); err != nil {
		t.Fatalf("Feed() error: %v", err)
	}
	cmd, err := d.Next()
	if err != nil {
		t.Fatalf("Next() error: %v", err)
	}
	if cmd.Type != "get_scene_info" {
		t.Errorf("cmd.Type = %q, want get_scene_info", cmd.Type)
	}
	if d.Buffered() != 0 {
		t.Errorf("Buffered() = %d, want 0", d.Buffered())
	}
}

func TestDecoderMultipleValuesInOneRead(t *testing.T) {
	d := NewDecoder(0)
	input := `{"type":"a"} {"type":"b","params":{"x":1}}` + "\n" + `{"type":"c"`
	if err := d.Feed([]byte(input)); err != nil {
		t.Fatalf("Feed() error: %v", err)
	}

	var got []string
	for {
		cmd, err := d.Next()
		if errors.Is(err, ErrIncomplete) {
			break
		}
		if err != nil {
			t.Fatalf("Next() error: %v", err)
		}
		got = append(got, cmd.Type)
	}

	if strings.Join(got, ",") != "a,b" {
		t.Errorf("decoded types = %v, want [a b]", got)
	}
	if d.Buffered() != len(`{"type":"c"`) {
		t.Errorf("Buffered() = %d, want %d", d.Buffered(), len(`{"type":"c"`))
	}
}

func TestDecoderMalformedDiscardsBuffer(t *testing.T) {
	d := NewDecoder(0)
	_ = d.Feed([]byte(`{"type": nope}`))

	_, err := d.Next()
	var me *MalformedError
	if !errors.As(err, &me) {
		t.Fatalf("Next() error = %v, want *MalformedError", err)
	}
	if d.Buffered() != 0 {
		t.Errorf("Buffered() = %d, want 0 after malformed input", d.Buffered())
	}

	_ = d.Feed([]byte(`{"type":"ok"}`))
	cmd, err := d.Next()
	if err != nil {
		t.Fatalf("Next() after recovery error: %v", err)
	}
	if cmd.Type != "ok" {
		t.Errorf("cmd.Type = %q, want ok", cmd.Type)
	}
}

func TestDecoderBufferLimit(t *testing.T) {
	d := NewDecoder(8)
	if err := d.Feed([]byte(`{"type"`)); err != nil {
		t.Fatalf("Feed() within limit error: %v", err)
	}
	err := d.Feed([]byte(`:"x"}`))
	var le *BufferLimitError
	if !errors.As(err, &le) {
		t.Fatalf("Feed() error = %v, want *BufferLimitError", err)
	}
	if le.Limit != 8 {
		t.Errorf("Limit = %d, want 8", le.Limit)
	}
}

func TestDecoderLargeCommandInChunks(t *testing.T) {
	code := strings.Repeat(`x = "a \"quoted\" {brace} [bracket] \\";`+"\n", 100000)
	msg, err := json.Marshal(Command{Type: "execute_code", Params: map[string]any{"code": code}})
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	if len(msg) < 4<<20 {
		t.Fatalf("message is %d bytes, want at least 4 MiB", len(msg))
	}

	d := NewDecoder(0)
	const chunk = 4096
	for off := 0; off < len(msg); off += chunk {
		end := min(off+chunk, len(msg))
		if err := d.Feed(msg[off:end]); err != nil {
			t.Fatalf("Feed() error: %v", err)
		}
		cmd, err := d.Next()
		if end < len(msg) {
			if !errors.Is(err, ErrIncomplete) {
				t.Fatalf("Next() at %d bytes error = %v, want ErrIncomplete", end, err)
			}
			// Bytes already scanned are not scanned again.
			if d.scan.pos != d.Buffered() {
				t.Fatalf("scan position = %d, want %d", d.scan.pos, d.Buffered())
			}
			continue
		}
		if err != nil {
			t.Fatalf("Next() error: %v", err)
		}
		if cmd.Params["code"] != code {
			t.Errorf("decoded code differs from the original")
		}
	}
	if d.Buffered() != 0 {
		t.Errorf("Buffered() = %d, want 0", d.Buffered())
	}
}

func TestDecoderGarbageIsReportedEarly(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"unclosed object with bad token", `{"type": bogus`},
		{"bare word", `hello`},
		{"stray closing bracket", `]`},
		{"bad byte after value start", `{"type":"a", #`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDecoder(0)
			_ = d.Feed([]byte(tt.input))
			_, err := d.Next()
			var me *MalformedError
			if !errors.As(err, &me) {
				t.Fatalf("Next() error = %v, want *MalformedError", err)
			}
			if d.Buffered() != 0 {
				t.Errorf("Buffered() = %d, want 0", d.Buffered())
			}
		})
	}
}

func TestDecoderTopLevelScalars(t *testing.T) {
	d := NewDecoder(0)
	_ = d.Feed([]byte(`"just a string" 42 {"type":"a"}`))

	var invalid *InvalidCommandError
	if _, err := d.Next(); !errors.As(err, &invalid) {
		t.Fatalf("Next() error = %v, want *InvalidCommandError for a string", err)
	}
	if _, err := d.Next(); !errors.As(err, &invalid) {
		t.Fatalf("Next() error = %v, want *InvalidCommandError for a number", err)
	}
	cmd, err := d.Next()
	if err != nil {
		t.Fatalf("Next() error: %v", err)
	}
	if cmd.Type != "a" {
		t.Errorf("cmd.Type = %q, want a", cmd.Type)
	}
}
