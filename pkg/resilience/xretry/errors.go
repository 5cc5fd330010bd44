package xretry

import "errors"

var (
	// ErrNilContext ctx 为 nil
	ErrNilContext = errors.New("xretry: nil context")

	// ErrNilFunc fn 为 nil
	ErrNilFunc = errors.New("xretry: nil function")
)

// PermanentError 不可重试的错误
type PermanentError struct {
	Err error
}

// Permanent 将 err 标记为不可重试。err 为 nil 时返回 nil。
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

func (e *PermanentError) Error() string {
	return "permanent: " + e.Err.Error()
}

// Unwrap 支持 errors.Is / errors.As
func (e *PermanentError) Unwrap() error {
	return e.Err
}

// IsPermanent 判断 err 链中是否有 PermanentError
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
