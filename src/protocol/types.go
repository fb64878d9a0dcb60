package protocol

import "github.com/mlops-eval/typedb-driver/src/clienterrors"

type SessionType int32

const (
	SessionData   SessionType = 0
	SessionSchema SessionType = 1
)

func (t SessionType) String() string {
	switch t {
	case SessionData:
		return "data"
	case SessionSchema:
		return "schema"
	default:
		return "unknown"
	}
}

func (t SessionType) Validate() error {
	if t != SessionData && t != SessionSchema {
		return clienterrors.UnrecognisedSessionType.New(int32(t))
	}
	return nil
}

// ParseSessionType maps "data" and "schema" to a SessionType.
func ParseSessionType(s string) (SessionType, error) {
	switch s {
	case "data":
		return SessionData, nil
	case "schema":
		return SessionSchema, nil
	default:
		return 0, clienterrors.UnrecognisedSessionType.New(-1)
	}
}

type TransactionType int32

const (
	TransactionRead  TransactionType = 0
	TransactionWrite TransactionType = 1
)

func (t TransactionType) String() string {
	switch t {
	case TransactionRead:
		return "read"
	case TransactionWrite:
		return "write"
	default:
		return "unknown"
	}
}

func (t TransactionType) Validate() error {
	if t != TransactionRead && t != TransactionWrite {
		return clienterrors.UnrecognisedTransactionType.New(int32(t))
	}
	return nil
}

// ParseTransactionType maps "read" and "write" to a TransactionType.
func ParseTransactionType(s string) (TransactionType, error) {
	switch s {
	case "read":
		return TransactionRead, nil
	case "write":
		return TransactionWrite, nil
	default:
		return 0, clienterrors.UnrecognisedTransactionType.New(-1)
	}
}
