package openai

import (
	"errors"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// completionObject is the "object" of every non-streamed completion.
const completionObject = "chat.completion"

// FormatCompletion reshapes an upstream non-streamed completion into the
// OpenAI layout: id, object, created, model, choices, system_fingerprint and
// usage, in that order. model is replaced with the advertised identifier and
// usage is zeroed when the upstream omitted it. Other upstream fields are
// dropped.
func FormatCompletion(raw []byte, model string) ([]byte, error) {
	if !gjson.ValidBytes(raw) {
		return nil, errors.New("invalid completion JSON")
	}

	src := gjson.ParseBytes(raw)
	if !src.IsObject() {
		return nil, errors.New("completion is not a JSON object")
	}

	out := []byte("{}")
	var err error

	set := func(path string, value any) {
		if err == nil {
			out, err = sjson.SetBytes(out, path, value)
		}
	}
	setRaw := func(path string, res gjson.Result) {
		if err != nil {
			return
		}
		if !res.Exists() {
			out, err = sjson.SetRawBytes(out, path, []byte("null"))
			return
		}
		out, err = sjson.SetRawBytes(out, path, []byte(res.Raw))
	}

	setRaw("id", src.Get("id"))
	set("object", completionObject)
	setRaw("created", src.Get("created"))
	set("model", model)
	setRaw("choices", src.Get("choices"))
	setRaw("system_fingerprint", src.Get("system_fingerprint"))

	usage := src.Get("usage")
	if usage.IsObject() {
		set("usage.prompt_tokens", usage.Get("prompt_tokens").Int())
		set("usage.completion_tokens", usage.Get("completion_tokens").Int())
		set("usage.total_tokens", usage.Get("total_tokens").Int())
	} else {
		set("usage.prompt_tokens", 0)
		set("usage.completion_tokens", 0)
		set("usage.total_tokens", 0)
	}

	if err != nil {
		return nil, err
	}
	return out, nil
}
