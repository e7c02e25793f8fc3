package delivery

import "fmt"

type Kind int

const (
	KindValidation Kind = iota + 1
	KindPersistence
	KindInternal
)

// Error is a failed send. Validation failures are not retry-worthy;
// persistence failures are.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func validationErr(msg string) *Error {
	return &Error{Kind: KindValidation, Msg: msg}
}

func persistenceErr(err error) *Error {
	return &Error{Kind: KindPersistence, Msg: "failed to save message", Err: err}
}
