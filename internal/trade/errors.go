package trade

import "voxeltrade.ai/internal/protocol"

// Error is a validation or state error carrying a wire code from
// internal/protocol. Validation errors never mutate state.
type Error struct {
	Code string
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Code
	}
	return e.Code + ": " + e.Msg
}

func codeErr(code, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// ErrCode extracts the wire code from an error returned by this package.
func ErrCode(err error) string {
	if err == nil {
		return ""
	}
	if te, ok := err.(*Error); ok {
		return te.Code
	}
	return protocol.ErrInternal
}
