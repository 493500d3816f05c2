package log

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cockroachdb/errors"

	operrors "github.com/HaoJinjin/open-soda/pkg/errors"
)

// ErrFmtHandler decorates records that carry an "error" attribute with the
// stack trace recorded by cockroachdb/errors, the innermost error type and,
// for caller mistakes, the INVALID_INPUT error code.
type ErrFmtHandler struct {
	handler slog.Handler
}

// WrapByErrFmtHandler wraps handler with an ErrFmtHandler.
func WrapByErrFmtHandler(handler slog.Handler) slog.Handler {
	return &ErrFmtHandler{handler: handler}
}

func (eh *ErrFmtHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return eh.handler.Enabled(ctx, l)
}

func (eh *ErrFmtHandler) Handle(ctx context.Context, r slog.Record) error {
	var found error
	r.Attrs(func(attr slog.Attr) bool {
		if attr.Key != ErrAttrKey {
			return true
		}
		if err, ok := attr.Value.Any().(error); ok {
			found = err
		}
		return false
	})
	if found == nil {
		return eh.handler.Handle(ctx, r)
	}

	if stack := extractStacktrace(found); stack != "" {
		r.AddAttrs(slog.String(StacktraceAttrKey, stack))
	}
	r.AddAttrs(slog.String(ErrorTypeKey, fmt.Sprintf("%T", errors.UnwrapAll(found))))
	if operrors.IsInputError(found) {
		r.AddAttrs(slog.String(ErrorCodeKey, ErrorInvalidInput))
	}
	return eh.handler.Handle(ctx, r)
}

func (eh *ErrFmtHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ErrFmtHandler{handler: eh.handler.WithAttrs(attrs)}
}

func (eh *ErrFmtHandler) WithGroup(g string) slog.Handler {
	return &ErrFmtHandler{handler: eh.handler.WithGroup(g)}
}

// extractStacktrace returns the first safe detail, which for errors built
// with errors.WithStack is the formatted stack.
func extractStacktrace(err error) string {
	if details := errors.GetSafeDetails(err).SafeDetails; len(details) > 0 {
		return details[0]
	}
	return ""
}
