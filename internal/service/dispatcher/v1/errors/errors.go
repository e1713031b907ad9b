// Package errors provides custom error types.

package errors

type (
	ServiceFoundNilArgument struct {
		Msg string
	}
)

func (e *ServiceFoundNilArgument) Error() string {
	return e.Msg
}
