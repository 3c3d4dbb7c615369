package rpc

import (
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/editor"
	"github.com/Cometix-Org/cometix-tab-copilot-exp-sub000/internal/stream"
)

// Wire names of the chunk frame types.
const (
	frameText             = "text"
	frameRangeToReplace   = "range_to_replace"
	frameBeginEdit        = "begin_edit"
	frameDoneEdit         = "done_edit"
	frameCursorPrediction = "cursor_prediction"
	frameModelInfo        = "model_info"
	frameDone             = "done"
)

// DecodeChunk parses one chunk frame. Frames are discriminated by their
// "type" field.
func DecodeChunk(frame gjson.Result) (stream.Chunk, error) {
	switch kind := frame.Get("type").String(); kind {
	case frameText:
		return stream.Text{Content: frame.Get("content").String()}, nil
	case frameRangeToReplace:
		return stream.RangeToReplace{
			Range: editor.LineRange{
				StartLine: int(frame.Get("start_line").Int()),
				EndLine:   int(frame.Get("end_line").Int()),
			},
			BindingID:   frame.Get("binding_id").String(),
			TrimLeading: frame.Get("trim_leading").Bool(),
		}, nil
	case frameBeginEdit:
		return stream.BeginEdit{}, nil
	case frameDoneEdit:
		return stream.DoneEdit{}, nil
	case frameCursorPrediction:
		return stream.CursorPredictionTarget{
			Path:            frame.Get("path").String(),
			Line:            int(frame.Get("line").Int()),
			ExpectedContent: frame.Get("expected_content").String(),
			ShouldRetrigger: frame.Get("should_retrigger").Bool(),
		}, nil
	case frameModelInfo:
		return stream.ModelInfo{
			IsFused:     frame.Get("is_fused").Bool(),
			IsMultidiff: frame.Get("is_multidiff").Bool(),
			Name:        frame.Get("name").String(),
		}, nil
	case frameDone:
		return stream.Terminator{}, nil
	default:
		return nil, fmt.Errorf("unknown chunk type %q", kind)
	}
}

// DecodeChunks parses the "chunks" array of a poll response body.
func DecodeChunks(body []byte) ([]stream.Chunk, error) {
	frames := gjson.GetBytes(body, "chunks")
	if !frames.Exists() {
		return nil, nil
	}
	var out []stream.Chunk
	var decodeErr error
	frames.ForEach(func(_, frame gjson.Result) bool {
		c, err := DecodeChunk(frame)
		if err != nil {
			decodeErr = err
			return false
		}
		out = append(out, c)
		return true
	})
	if decodeErr != nil {
		return nil, decodeErr
	}
	return out, nil
}

// EncodeChunk renders a chunk as a wire frame. The inverse of DecodeChunk;
// fakes and test servers use it to script streams.
func EncodeChunk(c stream.Chunk) ([]byte, error) {
	var (
		body = []byte(`{}`)
		err  error
	)
	set := func(path string, value interface{}) {
		if err != nil {
			return
		}
		body, err = sjson.SetBytes(body, path, value)
	}

	switch v := c.(type) {
	case stream.Text:
		set("type", frameText)
		set("content", v.Content)
	case stream.RangeToReplace:
		set("type", frameRangeToReplace)
		set("start_line", v.Range.StartLine)
		set("end_line", v.Range.EndLine)
		if v.BindingID != "" {
			set("binding_id", v.BindingID)
		}
		if v.TrimLeading {
			set("trim_leading", true)
		}
	case stream.BeginEdit:
		set("type", frameBeginEdit)
	case stream.DoneEdit:
		set("type", frameDoneEdit)
	case stream.CursorPredictionTarget:
		set("type", frameCursorPrediction)
		set("path", v.Path)
		set("line", v.Line)
		set("expected_content", v.ExpectedContent)
		set("should_retrigger", v.ShouldRetrigger)
	case stream.ModelInfo:
		set("type", frameModelInfo)
		set("is_fused", v.IsFused)
		set("is_multidiff", v.IsMultidiff)
		set("name", v.Name)
	case stream.Terminator:
		set("type", frameDone)
	default:
		return nil, fmt.Errorf("unknown chunk %T", c)
	}
	if err != nil {
		return nil, err
	}
	return body, nil
}
