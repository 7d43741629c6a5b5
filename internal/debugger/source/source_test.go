package source

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

type fakeContext struct {
	breakpoints map[string][]int
	setTraces   map[string][]int
	messages    []string
}

func newFakeContext() *fakeContext {
	return &fakeContext{
		breakpoints: make(map[string][]int),
		setTraces:   make(map[string][]int),
	}
}

func (c *fakeContext) BreakpointLines(file string) []int { return c.breakpoints[file] }
func (c *fakeContext) SetTraceLines(file string) []int { return c.setTraces[file] }
func (c *fakeContext) Message(title, text string) {
	c.messages = append(c.messages, title+": "+text)
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestEqual(t *testing.T) {
	cache := NewLineCache()
	code := &struct{ n int }{1}
	other := &struct{ n int }{1}

	tests := []struct {
		name     string
		a, b     Provider
		expected bool
	}{
		{"null null", NewNull(), NewNull(), true},
		{"file same path", NewFile("/a.lua", cache), NewFile("/a.lua", NewLineCache()), true},
		{"file different path", NewFile("/a.lua", cache), NewFile("/b.lua", cache), false},
		{"direct same code", NewDirect("f", code, "x"), NewDirect("f", code, "y"), true},
		{"direct different code", NewDirect("f", code, "x"), NewDirect("f", other, "x"), false},
		{"direct different routine", NewDirect("f", code, "x"), NewDirect("g", code, "x"), false},
		{"null file", NewNull(), NewFile("/a.lua", cache), false},
		{"file direct", NewFile("f", cache), NewDirect("f", code, ""), false},
		{"nil nil", nil, nil, true},
		{"nil null", nil, NewNull(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Equal(tt.a, tt.b); got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
			if got := Equal(tt.b, tt.a); got != tt.expected {
				t.Errorf("expected symmetric result %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestEqual_UncomparableCode(t *testing.T) {
	a := NewDirect("f", []int{1}, "")
	b := NewDirect("f", []int{1}, "")
	if Equal(a, b) {
		t.Error("expected uncomparable code identities to differ")
	}
}

func TestNull(t *testing.T) {
	p := NewNull()
	if p.Identifier() != "<no source code>" {
		t.Errorf("unexpected identifier %q", p.Identifier())
	}
	if _, ok := p.BreakpointSourceIdentifier(); ok {
		t.Error("expected no breakpoint source")
	}
	lines := p.Lines(newFakeContext())
	if len(lines) == 0 || lines[0].Text != "<no source code available>" {
		t.Errorf("unexpected placeholder %+v", lines)
	}
}

func TestFile_LinesWithMarkers(t *testing.T) {
	path := writeFile(t, "prog.lua", []byte("local a = 1\nlocal b = 2\r\nprint(a + b)\n"))
	ctx := newFakeContext()
	ctx.breakpoints[path] = []int{1, 3}
	ctx.setTraces[path] = []int{3, 2}

	p := NewFile(path, NewLineCache())
	lines := p.Lines(ctx)

	expected := []Line{
		{Number: 1, Text: "local a = 1", Breakpoint: true},
		{Number: 2, Text: "local b = 2", Breakpoint: true},
		{Number: 3, Text: "print(a + b)", Breakpoint: true},
	}
	if !reflect.DeepEqual(lines, expected) {
		t.Errorf("expected %+v, got %+v", expected, lines)
	}

	if id, ok := p.BreakpointSourceIdentifier(); !ok || id != path {
		t.Errorf("expected breakpoint source %s, got %s (%v)", path, id, ok)
	}
}

func TestFile_StringPseudoFile(t *testing.T) {
	lines := NewFile("<string>", NewLineCache()).Lines(newFakeContext())
	if len(lines) != 1 || lines[0].Text != "<string>" {
		t.Errorf("expected single <string> line, got %+v", lines)
	}
}

func TestFile_Unreadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.lua")
	ctx := newFakeContext()

	lines := NewFile(path, NewLineCache()).Lines(ctx)

	expected := "Error while loading '" + path + "'."
	if len(lines) != 1 || lines[0].Text != expected {
		t.Errorf("expected %q, got %+v", expected, lines)
	}
	if len(ctx.messages) != 1 || !strings.HasPrefix(ctx.messages[0], "Source Code Loading Error") {
		t.Errorf("expected one loading message, got %v", ctx.messages)
	}
}

func TestFile_InvalidUTF8(t *testing.T) {
	path := writeFile(t, "bad.lua", []byte("print('\xff\xfe')\n"))
	ctx := newFakeContext()
	cache := NewLineCache()

	lines := NewFile(path, cache).Lines(ctx)
	if len(lines) != 1 || !strings.HasPrefix(lines[0].Text, "Error while loading") {
		t.Errorf("expected error placeholder, got %+v", lines)
	}

	_, err := cache.Lines(path)
	var le *LoadError
	if !errors.As(err, &le) || le.Op != "decode" {
		t.Errorf("expected decode LoadError, got %v", err)
	}
	if !cache.Available(path) {
		t.Error("expected undecodable file to count as available")
	}
}

func TestFile_CodingCookie(t *testing.T) {
	data := []byte("-- -*- coding: latin-1 -*-\nprint('caf\xe9')\n")
	path := writeFile(t, "latin.lua", data)

	lines := NewFile(path, NewLineCache()).Lines(newFakeContext())
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %+v", lines)
	}
	if lines[1].Text != "print('café')" {
		t.Errorf("expected decoded latin-1 text, got %q", lines[1].Text)
	}
}

func TestDecodeSource(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		want    string
		wantErr bool
	}{
		{"plain", []byte("x = 1\n"), "x = 1\n", false},
		{"bom", []byte("\xEF\xBB\xBFx = 1\n"), "x = 1\n", false},
		{"cookie second line", []byte("#!/usr/bin/lua\n-- coding=latin-1\n\xe9\n"), "#!/usr/bin/lua\n-- coding=latin-1\né\n", false},
		{"cookie third line ignored", []byte("\n\n-- coding: latin-1\n\xe9\n"), "", true},
		{"unknown encoding", []byte("-- coding: klingon\n"), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeSource(tt.data)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestDirect(t *testing.T) {
	code := new(int)
	p := NewDirect("compute", code, "local x = 1\nreturn x")

	if p.Identifier() != "<source code of function compute>" {
		t.Errorf("unexpected identifier %q", p.Identifier())
	}
	if _, ok := p.BreakpointSourceIdentifier(); ok {
		t.Error("expected direct source not to support breakpoints")
	}

	lines := p.Lines(newFakeContext())
	expected := []Line{
		{Number: 1, Text: "local x = 1"},
		{Number: 2, Text: "return x"},
	}
	if !reflect.DeepEqual(lines, expected) {
		t.Errorf("expected %+v, got %+v", expected, lines)
	}
}

func TestLineCache_CheckAndClear(t *testing.T) {
	path := writeFile(t, "a.lua", []byte("one\n"))
	cache := NewLineCache()

	if !cache.HasLine(path, 1) || cache.HasLine(path, 2) {
		t.Fatal("expected exactly one line")
	}

	if err := os.WriteFile(path, []byte("one\ntwo\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cache.Check()
	if cache.Cached(path) {
		t.Error("expected changed file to be dropped by Check")
	}
	if !cache.HasLine(path, 2) {
		t.Error("expected reloaded file to have line 2")
	}

	NewFile(path, cache).ClearCache()
	if cache.Cached(path) {
		t.Error("expected ClearCache to drop entries")
	}
}

func TestLineCache_Available(t *testing.T) {
	cache := NewLineCache()
	if cache.Available("<stdin>") {
		t.Error("pseudo files are never available")
	}
	if cache.Available(filepath.Join(t.TempDir(), "nope.lua")) {
		t.Error("missing files are not available")
	}
}

func TestWatcher_InvalidatesChangedFile(t *testing.T) {
	dir := t.TempDir()
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(resolved, "w.lua")
	if err := os.WriteFile(path, []byte("a\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cache := NewLineCache()
	w, err := NewWatcher(cache)
	if err != nil {
		t.Skipf("fsnotify unavailable: %v", err)
	}
	defer w.Close()

	if _, err := cache.Lines(path); err != nil {
		t.Fatalf("Lines failed: %v", err)
	}

	if err := os.WriteFile(path, []byte("a\nb\n"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-w.Invalidated():
		if got != path {
			t.Errorf("expected %s invalidated, got %s", path, got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for invalidation")
	}

	// The truncate and the write may arrive as separate events.
	deadline := time.Now().Add(5 * time.Second)
	for {
		lines, err := cache.Lines(path)
		if err == nil && len(lines) == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected 2 lines after invalidation, got %v (%v)", lines, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWatcher_Closed(t *testing.T) {
	w, err := NewWatcher(NewLineCache())
	if err != nil {
		t.Skipf("fsnotify unavailable: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := w.Watch("/tmp/x.lua"); !errors.Is(err, ErrWatcherClosed) {
		t.Errorf("expected ErrWatcherClosed, got %v", err)
	}
}

func TestMarkedLines(t *testing.T) {
	lines := []Line{{Number: 3, Breakpoint: true}, {Number: 1, Breakpoint: true}, {Number: 2}}
	if got := MarkedLines(lines); !reflect.DeepEqual(got, []int{1, 3}) {
		t.Errorf("expected [1 3], got %v", got)
	}
}
