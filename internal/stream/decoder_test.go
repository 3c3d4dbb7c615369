package stream

import (
	"testing"

	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/editor"
)

func feedAll(t *testing.T, d *Decoder, chunks []Chunk) {
	t.Helper()
	for _, c := range chunks {
		d.Feed(c)
	}
}

func TestDecoder_TwoEdits(t *testing.T) {
	d := NewDecoder()
	feedAll(t, d, []Chunk{
		BeginEdit{},
		RangeToReplace{Range: editor.NewLineRange(1, 2)},
		Text{Content: "a"},
		Text{Content: "b"},
		DoneEdit{},
		BeginEdit{},
		RangeToReplace{Range: editor.NewLineRange(5, 5)},
		Text{Content: "c"},
		DoneEdit{},
		Terminator{},
	})

	if !d.Done() {
		t.Fatal("decoder not done after Terminator")
	}
	res := d.Result()
	if len(res.Edits) != 2 {
		t.Fatalf("got %d edits, want 2", len(res.Edits))
	}
	if res.Edits[0].Range != editor.NewLineRange(1, 2) || res.Edits[0].Text != "ab" {
		t.Errorf("edit 0 = %+v, want lines 1-2 %q", res.Edits[0], "ab")
	}
	if res.Edits[1].Range != editor.NewLineRange(5, 5) || res.Edits[1].Text != "c" {
		t.Errorf("edit 1 = %+v, want line 5 %q", res.Edits[1], "c")
	}
}

func TestDecoder_SingleEditWithoutBeginEdit(t *testing.T) {
	d := NewDecoder()
	feedAll(t, d, []Chunk{
		RangeToReplace{Range: editor.NewLineRange(10, 10)},
		Text{Content: "bar();"},
		DoneEdit{},
		Terminator{},
	})

	res := d.Result()
	if len(res.Edits) != 1 {
		t.Fatalf("got %d edits, want 1", len(res.Edits))
	}
	if res.Edits[0].Text != "bar();" || res.Edits[0].Range.StartLine != 10 {
		t.Errorf("edit = %+v", res.Edits[0])
	}
}

func TestDecoder_TrimLeading(t *testing.T) {
	d := NewDecoder()
	feedAll(t, d, []Chunk{
		RangeToReplace{Range: editor.NewLineRange(3, 3), TrimLeading: true},
		Text{Content: "\nfoo()"},
		DoneEdit{},
		Terminator{},
	})

	res := d.Result()
	if len(res.Edits) != 1 {
		t.Fatalf("got %d edits, want 1", len(res.Edits))
	}
	if res.Edits[0].Text != "foo()" {
		t.Errorf("trimmed text = %q, want %q", res.Edits[0].Text, "foo()")
	}
	if !res.Edits[0].TrimLeading {
		t.Error("TrimLeading flag not carried onto edit")
	}
}

func TestDecoder_BindingID(t *testing.T) {
	d := NewDecoder()
	feedAll(t, d, []Chunk{
		RangeToReplace{Range: editor.NewLineRange(1, 1), BindingID: "b-42"},
		Text{Content: "x"},
		DoneEdit{},
		Terminator{},
	})

	if got := d.Result().Edits[0].BindingID; got != "b-42" {
		t.Errorf("BindingID = %q, want b-42", got)
	}
}

func TestDecoder_CursorTargetAndModelInfo(t *testing.T) {
	d := NewDecoder()
	feedAll(t, d, []Chunk{
		ModelInfo{IsFused: true, IsMultidiff: true, Name: "fusion-1"},
		CursorPredictionTarget{Path: "a.go", Line: 42, ShouldRetrigger: true},
		Terminator{},
	})

	res := d.Result()
	if len(res.Edits) != 0 {
		t.Errorf("got %d edits, want 0", len(res.Edits))
	}
	if res.CursorTarget == nil || res.CursorTarget.Line != 42 || !res.CursorTarget.ShouldRetrigger {
		t.Errorf("CursorTarget = %+v", res.CursorTarget)
	}
	if res.Model == nil || !res.Model.IsFused || res.Model.Name != "fusion-1" {
		t.Errorf("Model = %+v", res.Model)
	}
}

func TestDecoder_DoneEditWithoutRangeDropsText(t *testing.T) {
	d := NewDecoder()
	feedAll(t, d, []Chunk{
		Text{Content: "orphan"},
		DoneEdit{},
		RangeToReplace{Range: editor.NewLineRange(2, 2)},
		Text{Content: "kept"},
		DoneEdit{},
		Terminator{},
	})

	res := d.Result()
	if len(res.Edits) != 1 {
		t.Fatalf("got %d edits, want 1", len(res.Edits))
	}
	if res.Edits[0].Text != "kept" {
		t.Errorf("text = %q, want %q", res.Edits[0].Text, "kept")
	}
}

func TestDecoder_BeginEditSegmentsAccumulation(t *testing.T) {
	d := NewDecoder()
	feedAll(t, d, []Chunk{
		RangeToReplace{Range: editor.NewLineRange(1, 1)},
		Text{Content: "discarded"},
		// A BeginEdit with no preceding DoneEdit abandons the open edit.
		BeginEdit{},
		RangeToReplace{Range: editor.NewLineRange(7, 7)},
		Text{Content: "second"},
		DoneEdit{},
		Terminator{},
	})

	res := d.Result()
	if len(res.Edits) != 1 {
		t.Fatalf("got %d edits, want 1", len(res.Edits))
	}
	if res.Edits[0].Text != "second" || res.Edits[0].Range.StartLine != 7 {
		t.Errorf("edit = %+v", res.Edits[0])
	}
}

func TestDecoder_IgnoresChunksAfterTerminator(t *testing.T) {
	d := NewDecoder()
	d.Feed(Terminator{})
	if done := d.Feed(Text{Content: "late"}); !done {
		t.Error("Feed after Terminator should report done")
	}
	if len(d.Result().Edits) != 0 {
		t.Error("chunks after Terminator must not produce edits")
	}
}

func TestString(t *testing.T) {
	tests := []struct {
		chunk Chunk
		want  string
	}{
		{Text{Content: "x"}, `Text("x")`},
		{BeginEdit{}, "BeginEdit"},
		{DoneEdit{}, "DoneEdit"},
		{Terminator{}, "Terminator"},
	}
	for _, tt := range tests {
		if got := String(tt.chunk); got != tt.want {
			t.Errorf("String(%T) = %q, want %q", tt.chunk, got, tt.want)
		}
	}
}
