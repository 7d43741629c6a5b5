package breakpoint

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestRegistry_Add(t *testing.T) {
	reg := NewRegistry()

	bp, err := reg.Add("/path/to/file.lua", 42, false, "", "")
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if bp.File != "/path/to/file.lua" {
		t.Errorf("expected file /path/to/file.lua, got %s", bp.File)
	}
	if bp.Line != 42 {
		t.Errorf("expected line 42, got %d", bp.Line)
	}
	if !bp.Enabled {
		t.Error("expected breakpoint to be enabled")
	}
	if bp.Temporary {
		t.Error("expected breakpoint to be permanent")
	}
}

func TestRegistry_AddInvalidLine(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Add("/path/to/file.lua", 0, false, "", "")
	if !errors.Is(err, ErrInvalidLine) {
		t.Errorf("expected ErrInvalidLine, got %v", err)
	}
}

func TestRegistry_AddValidatesLine(t *testing.T) {
	reg := NewRegistry(WithLineValidator(func(file string, line int) bool {
		return line <= 10
	}))

	if _, err := reg.Add("/path/to/file.lua", 10, false, "", ""); err != nil {
		t.Fatalf("Add on existing line failed: %v", err)
	}

	_, err := reg.Add("/path/to/file.lua", 11, false, "", "")
	if !errors.Is(err, ErrLineDoesNotExist) {
		t.Errorf("expected ErrLineDoesNotExist, got %v", err)
	}
	if reg.Len() != 1 {
		t.Errorf("expected 1 breakpoint, got %d", reg.Len())
	}
}

func TestRegistry_MultiplePerLine(t *testing.T) {
	reg := NewRegistry()

	first, _ := reg.Add("/path/to/file.lua", 5, false, "", "")
	second, _ := reg.Add("/path/to/file.lua", 5, true, "x > 1", "")

	bps := reg.At("/path/to/file.lua", 5)
	if len(bps) != 2 {
		t.Fatalf("expected 2 breakpoints, got %d", len(bps))
	}
	if bps[0].ID != first.ID || bps[1].ID != second.ID {
		t.Errorf("expected insertion order [%d %d], got [%d %d]", first.ID, second.ID, bps[0].ID, bps[1].ID)
	}
}

func TestRegistry_Clear(t *testing.T) {
	reg := NewRegistry()

	bp, _ := reg.Add("/path/to/file.lua", 42, false, "", "")

	if err := reg.Clear(bp.ID); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, ok := reg.Get(bp.ID); ok {
		t.Error("expected breakpoint to be removed")
	}
	if reg.HasFile("/path/to/file.lua") {
		t.Error("expected file to have no breakpoints")
	}
}

func TestRegistry_ClearNonexistent(t *testing.T) {
	reg := NewRegistry()

	err := reg.Clear(999)
	if !errors.Is(err, ErrBreakpointNotFound) {
		t.Errorf("expected ErrBreakpointNotFound, got %v", err)
	}
}

func TestRegistry_ClearAt(t *testing.T) {
	reg := NewRegistry()

	reg.Add("/path/to/file.lua", 7, false, "", "")
	reg.Add("/path/to/file.lua", 7, false, "", "")
	reg.Add("/path/to/file.lua", 8, false, "", "")

	n, err := reg.ClearAt("/path/to/file.lua", 7)
	if err != nil {
		t.Fatalf("ClearAt failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 removed, got %d", n)
	}
	if _, err := reg.ClearAt("/path/to/file.lua", 7); !errors.Is(err, ErrBreakpointNotFound) {
		t.Errorf("expected ErrBreakpointNotFound on second ClearAt, got %v", err)
	}
	if !reg.HasFile("/path/to/file.lua") {
		t.Error("expected line 8 breakpoint to remain")
	}
}

func TestRegistry_LinesOnlyEnabled(t *testing.T) {
	reg := NewRegistry()

	reg.Add("/path/to/file.lua", 30, false, "", "")
	disabled, _ := reg.Add("/path/to/file.lua", 20, false, "", "")
	reg.Add("/path/to/file.lua", 10, false, "", "")
	reg.Add("/path/to/other.lua", 15, false, "", "")

	if err := reg.SetEnabled(disabled.ID, false); err != nil {
		t.Fatalf("SetEnabled failed: %v", err)
	}

	lines := reg.Lines("/path/to/file.lua")
	expected := []int{10, 30}
	if !reflect.DeepEqual(lines, expected) {
		t.Errorf("expected lines %v, got %v", expected, lines)
	}

	if !reg.HasFile("/path/to/file.lua") {
		t.Error("disabled breakpoints still count for HasFile")
	}
}

func TestRegistry_CanonicalizesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "prog.lua")
	if err := os.WriteFile(target, []byte("print(1)\n"), 0644); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "link.lua")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	reg := NewRegistry()
	if _, err := reg.Add(link, 1, false, "", ""); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if len(reg.At(target, 1)) != 1 {
		t.Error("expected breakpoint added through symlink to match target path")
	}
}

func TestRegistry_Persistent(t *testing.T) {
	reg := NewRegistry()

	reg.Add("/a.lua", 1, false, "", "")
	reg.Add("/a.lua", 2, true, "", "")
	reg.Add("/b.lua", 3, false, "n == 2", "")

	bps := reg.Persistent()
	if len(bps) != 2 {
		t.Fatalf("expected 2 persistent breakpoints, got %d", len(bps))
	}
	for _, bp := range bps {
		if bp.Temporary {
			t.Errorf("temporary breakpoint %d returned", bp.ID)
		}
	}
}

func TestRegistry_SetIgnoreAndCondition(t *testing.T) {
	reg := NewRegistry()
	bp, _ := reg.Add("/a.lua", 1, false, "", "")

	if err := reg.SetCondition(bp.ID, "i > 10"); err != nil {
		t.Fatalf("SetCondition failed: %v", err)
	}
	if bp.Condition != "i > 10" {
		t.Errorf("expected condition 'i > 10', got %s", bp.Condition)
	}
	if err := reg.SetIgnore(bp.ID, -3); err != nil {
		t.Fatalf("SetIgnore failed: %v", err)
	}
	if bp.Ignore != 0 {
		t.Errorf("expected negative ignore to clamp to 0, got %d", bp.Ignore)
	}
	if err := reg.SetIgnore(999, 1); !errors.Is(err, ErrBreakpointNotFound) {
		t.Errorf("expected ErrBreakpointNotFound, got %v", err)
	}
}

func TestRegistry_EnableDisable(t *testing.T) {
	reg := NewRegistry()
	bp, _ := reg.Add("/a.lua", 4, false, "", "")

	if err := reg.Disable(bp.ID); err != nil {
		t.Fatalf("Disable failed: %v", err)
	}
	if got := reg.Lines("/a.lua"); len(got) != 0 {
		t.Errorf("expected no enabled lines, got %v", got)
	}
	if err := reg.Enable(bp.ID); err != nil {
		t.Fatalf("Enable failed: %v", err)
	}
	if got := reg.Lines("/a.lua"); len(got) != 1 || got[0] != 4 {
		t.Errorf("expected [4], got %v", got)
	}
	if err := reg.Disable(42); !errors.Is(err, ErrBreakpointNotFound) {
		t.Errorf("expected ErrBreakpointNotFound, got %v", err)
	}
}

func TestRegistry_Effective(t *testing.T) {
	loc := Location{File: "/a.lua", Line: 4}

	t.Run("unconditional", func(t *testing.T) {
		reg := NewRegistry()
		bp, _ := reg.Add("/a.lua", 4, false, "", "")

		got, del := reg.Effective(loc, Hit{Line: 4})
		if got != bp || !del {
			t.Errorf("expected (%d, true), got (%v, %v)", bp.ID, got, del)
		}
		if bp.Hits != 1 {
			t.Errorf("expected 1 hit, got %d", bp.Hits)
		}
	})

	t.Run("disabled skipped", func(t *testing.T) {
		reg := NewRegistry()
		bp, _ := reg.Add("/a.lua", 4, false, "", "")
		reg.SetEnabled(bp.ID, false)

		if got, _ := reg.Effective(loc, Hit{Line: 4}); got != nil {
			t.Errorf("expected no breakpoint, got %d", got.ID)
		}
		if bp.Hits != 0 {
			t.Errorf("disabled breakpoint should not count hits, got %d", bp.Hits)
		}
	})

	t.Run("ignore count", func(t *testing.T) {
		reg := NewRegistry()
		bp, _ := reg.Add("/a.lua", 4, false, "", "")
		reg.SetIgnore(bp.ID, 2)

		for i := 0; i < 2; i++ {
			if got, _ := reg.Effective(loc, Hit{Line: 4}); got != nil {
				t.Fatalf("hit %d: expected ignore, got breakpoint", i+1)
			}
		}
		if got, _ := reg.Effective(loc, Hit{Line: 4}); got != bp {
			t.Error("expected third hit to trigger")
		}
		if bp.Hits != 3 {
			t.Errorf("expected 3 hits, got %d", bp.Hits)
		}
	})

	t.Run("condition", func(t *testing.T) {
		reg := NewRegistry()
		bp, _ := reg.Add("/a.lua", 4, false, "x", "")

		value := false
		hit := Hit{Line: 4, Eval: func(cond string) (bool, error) {
			if cond != "x" {
				t.Errorf("expected condition x, got %s", cond)
			}
			return value, nil
		}}

		if got, _ := reg.Effective(loc, hit); got != nil {
			t.Error("expected false condition not to trigger")
		}
		value = true
		if got, _ := reg.Effective(loc, hit); got != bp {
			t.Error("expected true condition to trigger")
		}
	})

	t.Run("condition error keeps temporary", func(t *testing.T) {
		reg := NewRegistry()
		bp, _ := reg.Add("/a.lua", 4, true, "boom(", "")

		got, del := reg.Effective(loc, Hit{Line: 4, Eval: func(string) (bool, error) {
			return false, errors.New("syntax error")
		}})
		if got != bp {
			t.Fatal("expected broken condition to stop")
		}
		if del {
			t.Error("expected broken condition not to allow deleting a temporary breakpoint")
		}
	})

	t.Run("function breakpoint first line only", func(t *testing.T) {
		reg := NewRegistry()
		bp, _ := reg.Add("/a.lua", 4, false, "", "work")

		if got, _ := reg.Effective(loc, Hit{Line: 5, FuncName: "other"}); got != nil {
			t.Error("expected other routine not to match")
		}
		if got, _ := reg.Effective(loc, Hit{Line: 5, FuncName: "work"}); got != bp {
			t.Error("expected first executed line of routine to match")
		}
		if got, _ := reg.Effective(loc, Hit{Line: 6, FuncName: "work"}); got != nil {
			t.Error("expected later lines of routine not to match")
		}
	})
}

func TestCanonicalizer_PseudoFiles(t *testing.T) {
	c := NewCanonicalizer()

	for _, name := range []string{"<string>", "<stdin>", ""} {
		if got := c.Canonical(name); got != name {
			t.Errorf("Canonical(%q) = %q, expected unchanged", name, got)
		}
	}

	if got := c.Canonical("/x/../y/z.lua"); got != "/y/z.lua" {
		t.Errorf("expected cleaned path /y/z.lua, got %s", got)
	}
}
