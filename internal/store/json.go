package store

import "encoding/json"

func marshalEvent(ev Event) ([]byte, error) {
	return json.Marshal(ev)
}

func unmarshalEvent(line string, ev *Event) error {
	return json.Unmarshal([]byte(line), ev)
}

func marshalAny(v any) ([]byte, error) {
	return json.Marshal(v)
}

func unmarshalInto(data []byte, dest any) error {
	return json.Unmarshal(data, dest)
}
