package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// genericFailureDetail is used when an error response carries no usable body.
const genericFailureDetail = "PDF generation failed"

// APIError 表示排版引擎返回的非 2xx 响应。
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("engine status %d: %s", e.Status, e.Detail)
}

// QuotaError 表示 429 限额响应，需要与一般失败区分展示。
type QuotaError struct {
	Detail string
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("engine quota exceeded: %s", e.Detail)
}

// IsAbort reports whether err is the benign outcome of a superseded request:
// the caller cancelled the context before the engine answered.
func IsAbort(err error) bool {
	return errors.Is(err, context.Canceled)
}

// IsTimeout reports whether err was caused by the fixed client timeout (or a
// context deadline), as opposed to an engine-side failure.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
