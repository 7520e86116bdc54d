package remote

import (
	"fmt"

	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/encoding/protowire"
)

// codecName is the gRPC content subtype for table messages.
const codecName = "kvwire"

// KeyValue is the request of every TableService method. Read and Erase leave
// Value empty. On the wire it is `bytes key = 1; bytes value = 2;`.
type KeyValue struct {
	Key   []byte
	Value []byte
}

// Outcome is the response of every TableService method. On the wire it is
// `bool ok = 1; bytes value = 2;`.
type Outcome struct {
	OK    bool
	Value []byte
}

// message is implemented by the types codec can carry.
type message interface {
	appendWire(b []byte) []byte
	parseWire(b []byte) error
}

func (m *KeyValue) appendWire(b []byte) []byte {
	if len(m.Key) > 0 {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Key)
	}
	if len(m.Value) > 0 {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Value)
	}
	return b
}

func (m *KeyValue) parseWire(b []byte) error {
	*m = KeyValue{}
	return parseFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, bool) {
		if typ != protowire.BytesType || (num != 1 && num != 2) {
			return 0, false
		}
		v, n := protowire.ConsumeBytes(b)
		// The buffer is recycled once Unmarshal returns.
		v = append([]byte(nil), v...)
		if num == 1 {
			m.Key = v
		} else {
			m.Value = v
		}
		return n, true
	})
}

func (m *Outcome) appendWire(b []byte) []byte {
	if m.OK {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(true))
	}
	if len(m.Value) > 0 {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, m.Value)
	}
	return b
}

func (m *Outcome) parseWire(b []byte) error {
	*m = Outcome{}
	return parseFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, bool) {
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.OK = protowire.DecodeBool(v)
			return n, true
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			m.Value = append([]byte(nil), v...)
			return n, true
		}
		return 0, false
	})
}

// parseFields walks the fields of b. field consumes the value of a known
// field and returns its length; unknown fields are skipped.
func parseFields(b []byte, field func(num protowire.Number, typ protowire.Type, b []byte) (int, bool)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		n, known := field(num, typ, b)
		if !known {
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
	}
	return nil
}

// codec marshals KeyValue and Outcome in protobuf wire format.
type codec struct{}

func (codec) Marshal(v any) ([]byte, error) {
	m, ok := v.(message)
	if !ok {
		return nil, fmt.Errorf("remote: cannot marshal %T", v)
	}
	return m.appendWire(nil), nil
}

func (codec) Unmarshal(data []byte, v any) error {
	m, ok := v.(message)
	if !ok {
		return fmt.Errorf("remote: cannot unmarshal into %T", v)
	}
	return m.parseWire(data)
}

func (codec) Name() string {
	return codecName
}

func init() {
	encoding.RegisterCodec(codec{})
}
