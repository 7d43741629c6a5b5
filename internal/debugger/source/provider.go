// Package source decides what source text to show for a stopped frame.
//
// A Provider is one of three closed variants: Null (nothing to show), File
// (lines read from disk through a LineCache) and Direct (source embedded in the
// frame's module). Providers are compared with Equal so a presenter can skip
// re-rendering when the provider did not change.
package source

import (
	"fmt"
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// Kind identifies a provider variant.
type Kind int

const (
	KindNull Kind = iota
	KindFile
	KindDirect
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindFile:
		return "file"
	case KindDirect:
		return "direct"
	default:
		return "unknown"
	}
}

// Line is one display line.
type Line struct {
	// Number is the 1-based line number, or 0 for placeholder text.
	Number int
	// Text is the line without its terminator.
	Text string
	// Breakpoint marks lines carrying an enabled breakpoint or set-trace mark.
	Breakpoint bool
}

// Context is what providers need from the debugger.
type Context interface {
	// BreakpointLines returns the lines of file with an enabled breakpoint.
	BreakpointLines(file string) []int
	// SetTraceLines returns the lines of file recorded as set-trace marks.
	SetTraceLines(file string) []int
	// Message shows a notice to the operator.
	Message(title, text string)
}

// Provider supplies display lines for the current frame.
type Provider interface {
	Kind() Kind
	// Lines returns the lines to display.
	Lines(ctx Context) []Line
	// Identifier names the source for display.
	Identifier() string
	// BreakpointSourceIdentifier returns the file name breakpoints are keyed
	// by, when the source supports breakpoints.
	BreakpointSourceIdentifier() (string, bool)
	// ClearCache drops any cached text behind the provider.
	ClearCache()

	sealed()
}

// Equal reports whether two providers show the same source.
func Equal(a, b Provider) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}

	switch x := a.(type) {
	case *Null:
		return true
	case *File:
		return x.path == b.(*File).path
	case *Direct:
		y := b.(*Direct)
		return x.routine == y.routine && sameCode(x.code, y.code)
	}
	return false
}

// sameCode compares code identities without panicking on uncomparable values.
func sameCode(a, b any) (equal bool) {
	defer func() {
		if recover() != nil {
			equal = false
		}
	}()
	return a == b
}

// Null shows a placeholder when no source is available.
type Null struct{}

// NewNull returns the Null provider.
func NewNull() *Null { return &Null{} }

func (*Null) sealed() {}

// Kind returns KindNull.
func (*Null) Kind() Kind { return KindNull }

// Identifier returns "<no source code>".
func (*Null) Identifier() string { return "<no source code>" }

// BreakpointSourceIdentifier reports no breakpoint source.
func (*Null) BreakpointSourceIdentifier() (string, bool) { return "", false }

// ClearCache does nothing.
func (*Null) ClearCache() {}

// Lines returns the explanation placeholder.
func (*Null) Lines(Context) []Line {
	return []Line{
		{Text: "<no source code available>"},
		{Text: ""},
		{Text: "If this is generated code and you would like the source code to show up here,"},
		{Text: "the module that defines it can embed its source text so the host can"},
		{Text: "report it to the debugger."},
	}
}

// File shows lines of a file on disk.
type File struct {
	path  string
	cache *LineCache
}

// NewFile returns a provider for the canonical file path.
func NewFile(path string, cache *LineCache) *File {
	return &File{path: path, cache: cache}
}

func (*File) sealed() {}

// Kind returns KindFile.
func (*File) Kind() Kind { return KindFile }

// Path returns the file path.
func (f *File) Path() string { return f.path }

// Identifier returns the file path.
func (f *File) Identifier() string { return f.path }

// BreakpointSourceIdentifier returns the file path.
func (f *File) BreakpointSourceIdentifier() (string, bool) { return f.path, true }

// ClearCache drops every cached file.
func (f *File) ClearCache() { f.cache.Clear() }

// Lines returns the file lines with breakpoint markers. Pseudo files show
// their name; read or decode failures are reported through ctx.
func (f *File) Lines(ctx Context) []Line {
	if f.path == "<string>" {
		return []Line{{Text: "<string>"}}
	}

	marks := mapset.NewThreadUnsafeSet[int]()
	marks.Append(ctx.BreakpointLines(f.path)...)
	marks.Append(ctx.SetTraceLines(f.path)...)

	lines, err := f.cache.Lines(f.path)
	if err != nil {
		ctx.Message("Source Code Loading Error",
			fmt.Sprintf("Could not load source file %q:\n\n%v", f.path, err))
		return []Line{{Text: fmt.Sprintf("Error while loading '%s'.", f.path)}}
	}

	return format(lines, marks)
}

// Direct shows source text embedded in the frame's module.
type Direct struct {
	routine string
	code    any
	text    string
}

// NewDirect returns a provider for text embedded in the module that defines
// routine. code is the frame's code identity.
func NewDirect(routine string, code any, text string) *Direct {
	return &Direct{routine: routine, code: code, text: text}
}

func (*Direct) sealed() {}

// Kind returns KindDirect.
func (*Direct) Kind() Kind { return KindDirect }

// Identifier names the routine the text belongs to.
func (d *Direct) Identifier() string {
	return fmt.Sprintf("<source code of function %s>", d.routine)
}

// BreakpointSourceIdentifier reports no breakpoint source.
func (*Direct) BreakpointSourceIdentifier() (string, bool) { return "", false }

// ClearCache does nothing.
func (*Direct) ClearCache() {}

// Lines returns the embedded text without breakpoint markers.
func (d *Direct) Lines(Context) []Line {
	text := strings.ToValidUTF8(d.text, "\uFFFD")
	return format(splitLines(text), mapset.NewThreadUnsafeSet[int]())
}

func format(lines []string, marks mapset.Set[int]) []Line {
	out := make([]Line, len(lines))
	for i, text := range lines {
		out[i] = Line{
			Number:     i + 1,
			Text:       text,
			Breakpoint: marks.Contains(i + 1),
		}
	}
	return out
}

// MarkedLines returns the sorted line numbers marked as breakpoints.
func MarkedLines(lines []Line) []int {
	var marked []int
	for _, l := range lines {
		if l.Breakpoint {
			marked = append(marked, l.Number)
		}
	}
	sort.Ints(marked)
	return marked
}
