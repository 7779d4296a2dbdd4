package relay

import "encoding/json"

type envelopeKind int

const (
	// envelopeRaw is the legacy shape: the payload itself is the message
	// body and gets wrapped under a "message" field at fan-out.
	envelopeRaw envelopeKind = iota
	// envelopeNested already carries a "message" field and is forwarded
	// verbatim with the entity id merged in.
	envelopeNested
)

// envelope is the decoded form of a bus payload. The dual-format
// contract (nested vs raw) is resolved exactly once, here, instead of
// shape checks scattered downstream.
type envelope struct {
	kind   envelopeKind
	fields map[string]any
	raw    json.RawMessage
}

func decodeEnvelope(payload []byte) (envelope, error) {
	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err == nil {
		if _, ok := fields["message"]; ok {
			return envelope{kind: envelopeNested, fields: fields}, nil
		}
		return envelope{kind: envelopeRaw, raw: payload}, nil
	}

	// Not an object; any other valid JSON value is still a legal legacy
	// payload (a bare string, say).
	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return envelope{}, err
	}
	return envelope{kind: envelopeRaw, raw: payload}, nil
}

// normalize produces the outbound room payload with the entity id from
// the topic merged under idKey.
func (e envelope) normalize(idKey, id string) map[string]any {
	if e.kind == envelopeNested {
		out := make(map[string]any, len(e.fields)+1)
		for k, v := range e.fields {
			out[k] = v
		}
		out[idKey] = id
		return out
	}
	return map[string]any{
		idKey:     id,
		"message": e.raw,
	}
}
