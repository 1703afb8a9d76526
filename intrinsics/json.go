package intrinsics

import (
	"bytes"
	"encoding/json"
	"strings"
)

// JSONString renders v as JSON text that may embed intrinsics. Each
// intrinsic appears as a JSON string holding its deploy-time value, so
//
//	JSONString(Json{"Cluster": Ref{LogicalName: "Jobs"}})
//
// yields Fn::Join ["", ["{\"Cluster\":\"", {"Ref": "Jobs"}, "\"}"]]. The
// result is a plain string when v holds no intrinsic. Struct field order is
// kept.
func JSONString(v any) (any, error) {
	data, err := marshal(v)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}

	var found []any
	collectIntrinsics(generic, &found)
	if len(found) == 0 {
		return string(data), nil
	}

	encoded := make([]string, len(found))
	for i, f := range found {
		b, err := marshal(f)
		if err != nil {
			return nil, err
		}
		encoded[i] = string(b)
	}

	text := string(data)
	var parts []any
	for {
		at, which := -1, -1
		for i, e := range encoded {
			if idx := strings.Index(text, e); idx >= 0 && (at < 0 || idx < at) {
				at, which = idx, i
			}
		}
		if at < 0 {
			break
		}
		parts = append(parts, text[:at]+`"`, found[which], `"`)
		text = text[at+len(encoded[which]):]
	}
	parts = append(parts, text)
	return Concat(parts...), nil
}

func collectIntrinsics(v any, found *[]any) {
	switch x := v.(type) {
	case map[string]any:
		if IsIntrinsic(x) {
			*found = append(*found, x)
			return
		}
		for _, child := range x {
			collectIntrinsics(child, found)
		}
	case []any:
		for _, child := range x {
			collectIntrinsics(child, found)
		}
	}
}

func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
