package clienterrors

import (
	"fmt"
	"strings"
)

// ErrorMessage is a coded message template. It is itself an error so callers can
// classify failures with errors.Is(err, clienterrors.StreamClosed).
type ErrorMessage struct {
	codePrefix    string
	codeNumber    int
	messagePrefix string
	format        string
}

func newMessage(codePrefix string, codeNumber int, messagePrefix, format string) *ErrorMessage {
	return &ErrorMessage{
		codePrefix:    codePrefix,
		codeNumber:    codeNumber,
		messagePrefix: messagePrefix,
		format:        format,
	}
}

// Code renders the message code, e.g. "CLI05".
func (m *ErrorMessage) Code() string {
	return fmt.Sprintf("%s%02d", m.codePrefix, m.codeNumber)
}

// Message renders the full message with the given arguments.
func (m *ErrorMessage) Message(args ...interface{}) string {
	body := m.format
	if strings.Contains(body, "%") {
		body = fmt.Sprintf(body, args...)
	}
	return fmt.Sprintf("[%s] %s: %s", m.Code(), m.messagePrefix, body)
}

func (m *ErrorMessage) Error() string {
	return fmt.Sprintf("[%s] %s", m.Code(), m.messagePrefix)
}

// New builds a ClientError from this message.
func (m *ErrorMessage) New(args ...interface{}) *ClientError {
	return &ClientError{message: m, text: m.Message(args...)}
}

// Wrap builds a ClientError from this message, keeping cause for errors.Unwrap.
func (m *ErrorMessage) Wrap(cause error, args ...interface{}) *ClientError {
	e := m.New(args...)
	e.cause = cause
	return e
}

// ClientError is an error raised by the driver itself.
type ClientError struct {
	message *ErrorMessage
	text    string
	cause   error
}

func (e *ClientError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.text, e.cause)
	}
	return e.text
}

func (e *ClientError) Unwrap() error {
	return e.cause
}

// Is reports whether target is the message this error was built from.
func (e *ClientError) Is(target error) bool {
	m, ok := target.(*ErrorMessage)
	return ok && m == e.message
}

// ErrorMessage returns the template this error was built from.
func (e *ClientError) ErrorMessage() *ErrorMessage {
	return e.message
}
