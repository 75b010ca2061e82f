package message

import (
	"bytes"
	"encoding/json"
)

// raw is a shallow decode of a JSON object body used only to check field
// presence and JSON-level type before the full typed decode runs. Decoding
// twice keeps Check() precise about "field missing" vs. "field wrong type"
// without hand-rolling a JSON parser.
type raw map[string]json.RawMessage

func decodeRaw(body []byte) (raw, error) {
	var r raw
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, err
	}
	return r, nil
}

func isNull(v json.RawMessage) bool {
	t := bytes.TrimSpace(v)
	return len(t) == 0 || string(t) == "null"
}

func (r raw) has(key string) bool {
	v, ok := r[key]
	return ok && !isNull(v)
}

// keyExists reports whether key is present in the object at all, even if
// its value is JSON null — unlike has, which treats null the same as
// absent. Fields typed "any" (RpcResponse.Result) are genuinely allowed to
// be null; only fields with a concrete expected shape use has.
func (r raw) keyExists(key string) bool {
	_, ok := r[key]
	return ok
}

func (r raw) isString(key string) bool {
	v, ok := r[key]
	if !ok || isNull(v) {
		return false
	}
	var s string
	return json.Unmarshal(v, &s) == nil
}

func (r raw) isObject(key string) bool {
	v, ok := r[key]
	if !ok || isNull(v) {
		return false
	}
	var m map[string]json.RawMessage
	return json.Unmarshal(v, &m) == nil
}

func (r raw) isArray(key string) bool {
	v, ok := r[key]
	if !ok || isNull(v) {
		return false
	}
	var a []json.RawMessage
	return json.Unmarshal(v, &a) == nil
}

func (r raw) isIntegral(key string) bool {
	v, ok := r[key]
	if !ok || isNull(v) {
		return false
	}
	var n json.Number
	if json.Unmarshal(v, &n) != nil {
		return false
	}
	_, err := n.Int64()
	return err == nil
}
