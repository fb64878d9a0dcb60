package protocol

import "google.golang.org/protobuf/encoding/protowire"

// Message is implemented by every unary request and response body.
type Message interface {
	Marshal() ([]byte, error)
	Unmarshal(b []byte) error
}

type SessionOpenReq struct {
	Database string
	Type     SessionType
	Options  *Options
}

func (m *SessionOpenReq) Marshal() ([]byte, error) {
	b := appendStringField(nil, 1, m.Database)
	b = appendVarintField(b, 2, int32Varint(int32(m.Type)))
	if m.Options != nil {
		opts, err := m.Options.Marshal()
		if err != nil {
			return nil, err
		}
		b = appendBytesField(b, 3, opts)
	}
	return b, nil
}

func (m *SessionOpenReq) Unmarshal(b []byte) error {
	*m = SessionOpenReq{}
	return consumeFields(b, func(f field) error {
		switch f.num {
		case 1:
			m.Database = string(f.bytes)
		case 2:
			m.Type = SessionType(varintInt32(f.varint))
		case 3:
			m.Options = &Options{}
			return m.Options.Unmarshal(f.bytes)
		}
		return nil
	})
}

type SessionOpenRes struct {
	SessionID            []byte
	ServerDurationMillis int32
}

func (m *SessionOpenRes) Marshal() ([]byte, error) {
	b := appendBytesField(nil, 1, m.SessionID)
	return appendVarintField(b, 2, int32Varint(m.ServerDurationMillis)), nil
}

func (m *SessionOpenRes) Unmarshal(b []byte) error {
	*m = SessionOpenRes{}
	return consumeFields(b, func(f field) error {
		switch f.num {
		case 1:
			m.SessionID = f.bytes
		case 2:
			m.ServerDurationMillis = varintInt32(f.varint)
		}
		return nil
	})
}

// SessionReq addresses an existing session; used by close and pulse.
type SessionReq struct {
	SessionID []byte
}

func (m *SessionReq) Marshal() ([]byte, error) {
	return appendBytesField(nil, 1, m.SessionID), nil
}

func (m *SessionReq) Unmarshal(b []byte) error {
	*m = SessionReq{}
	return consumeFields(b, func(f field) error {
		if f.num == 1 && f.typ == protowire.BytesType {
			m.SessionID = f.bytes
		}
		return nil
	})
}

type SessionPulseRes struct {
	Alive bool
}

func (m *SessionPulseRes) Marshal() ([]byte, error) {
	return appendBoolField(nil, 1, m.Alive), nil
}

func (m *SessionPulseRes) Unmarshal(b []byte) error {
	*m = SessionPulseRes{}
	return consumeFields(b, func(f field) error {
		if f.num == 1 && f.typ == protowire.VarintType {
			m.Alive = protowire.DecodeBool(f.varint)
		}
		return nil
	})
}

// DatabaseReq names a database; used by create, contains and delete.
type DatabaseReq struct {
	Name string
}

func (m *DatabaseReq) Marshal() ([]byte, error) {
	return appendStringField(nil, 1, m.Name), nil
}

func (m *DatabaseReq) Unmarshal(b []byte) error {
	*m = DatabaseReq{}
	return consumeFields(b, func(f field) error {
		if f.num == 1 && f.typ == protowire.BytesType {
			m.Name = string(f.bytes)
		}
		return nil
	})
}

type DatabaseContainsRes struct {
	Contains bool
}

func (m *DatabaseContainsRes) Marshal() ([]byte, error) {
	return appendBoolField(nil, 1, m.Contains), nil
}

func (m *DatabaseContainsRes) Unmarshal(b []byte) error {
	*m = DatabaseContainsRes{}
	return consumeFields(b, func(f field) error {
		if f.num == 1 && f.typ == protowire.VarintType {
			m.Contains = protowire.DecodeBool(f.varint)
		}
		return nil
	})
}

type DatabaseAllRes struct {
	Names []string
}

func (m *DatabaseAllRes) Marshal() ([]byte, error) {
	var b []byte
	for _, name := range m.Names {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, name)
	}
	return b, nil
}

func (m *DatabaseAllRes) Unmarshal(b []byte) error {
	*m = DatabaseAllRes{}
	return consumeFields(b, func(f field) error {
		if f.num == 1 && f.typ == protowire.BytesType {
			m.Names = append(m.Names, string(f.bytes))
		}
		return nil
	})
}

// Empty is the body of requests and responses that carry nothing.
type Empty struct{}

func (m *Empty) Marshal() ([]byte, error) {
	return nil, nil
}

func (m *Empty) Unmarshal(b []byte) error {
	return consumeFields(b, func(field) error { return nil })
}
