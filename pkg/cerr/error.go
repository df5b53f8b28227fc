package cerr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime"

	"buf.build/gen/go/bufbuild/protovalidate/protocolbuffers/go/buf/validate"
	"connectrpc.com/connect"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/kazz187/sitecrew/pkg/clog"
)

type Error struct {
	Code    Code
	Reason  string          // machine readable failure symbol, e.g. ANOTHER_TASK_ACTIVE
	Msg     string          // message returned to the caller with Code
	Err     error           // underlying error kept for logs only
	Stack   string          // captured for error level codes
	Details []proto.Message // structured detail returned to the caller
}

func NewError(code Code, msg string, underlying error) *Error {
	err := &Error{
		Code: code,
		Msg:  msg,
		Err:  underlying,
	}
	if clog.ConnectCodeToLevel(code.ConnectCode()) == clog.LevelError {
		stackTrace := make([]byte, 2048)
		n := runtime.Stack(stackTrace, false)
		err.Stack = string(stackTrace[0:n])
	}
	return err
}

// NewReasonError builds an Error carrying a reason symbol and, when fields is
// non-empty, a structured detail describing the failure.
func NewReasonError(code Code, reason, msg string, fields map[string]any) *Error {
	err := NewError(code, msg, nil)
	err.Reason = reason
	if len(fields) > 0 {
		err.AddDetailFields(fields)
	}
	return err
}

func (e *Error) Error() string {
	prefix := e.Code.String()
	if e.Reason != "" {
		prefix += "/" + e.Reason
	}
	if e.Err == nil {
		return fmt.Sprintf("[%s] %s", prefix, e.Msg)
	}
	return fmt.Sprintf("[%s] %s: %s", prefix, e.Msg, e.Err.Error())
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) AddDetailError(err proto.Message) {
	e.Details = append(e.Details, err)
}

// AddDetailFields appends fields as a google.protobuf.Struct detail. Values
// that structpb cannot represent are stringified.
func (e *Error) AddDetailFields(fields map[string]any) *Error {
	normalized := make(map[string]any, len(fields))
	for k, v := range fields {
		normalized[k] = normalizeDetailValue(v)
	}
	st, err := structpb.NewStruct(normalized)
	if err != nil {
		st = &structpb.Struct{Fields: map[string]*structpb.Value{
			"detail": structpb.NewStringValue(fmt.Sprint(fields)),
		}}
	}
	e.Details = append(e.Details, st)
	return e
}

func normalizeDetailValue(v any) any {
	switch val := v.(type) {
	case []int64:
		out := make([]any, len(val))
		for i, n := range val {
			out[i] = n
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out
	case []map[string]any:
		out := make([]any, len(val))
		for i, m := range val {
			out[i] = normalizeDetailValue(m)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = normalizeDetailValue(inner)
		}
		return out
	case nil, bool, int, int32, int64, uint32, uint64, float32, float64, string, []any:
		return val
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

func (e *Error) AddDetailMessageWithCode(msg string, code string) error {
	protoMsg := validate.Violation{
		Message: &msg,
		RuleId:  &code,
	}
	e.Details = append(e.Details, &protoMsg)
	return e
}

func (e *Error) ConnectError() *connect.Error {
	connectErr := connect.NewError(e.Code.ConnectCode(), errors.New(e.Msg))
	if e.Reason != "" {
		connectErr.Meta().Set("X-Error-Reason", e.Reason)
	}
	for _, detailMsg := range e.Details {
		detail, err := connect.NewErrorDetail(detailMsg)
		if err != nil {
			continue
		}
		connectErr.AddDetail(detail)
	}
	return connectErr
}

func ExtractConnectError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if isCanceled(err) {
		return NewError(Canceled, "connection closed", err).ConnectError()
	}

	clog.AddError(ctx, err)
	var cerr *Error
	if errors.As(err, &cerr) {
		if cerr.Stack != "" {
			clog.AddStack(ctx, cerr.Stack)
		}
		return cerr.ConnectError()
	}
	return NewError(Unknown, "unknown error", err).ConnectError()
}

func isCanceled(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr) && dnsErr.Err == "operation was canceled"
}

func IsCode(err error, code Code) bool {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Code == code
	}
	return false
}

// ReasonOf returns the reason symbol of err, or "" when err is not an *Error.
func ReasonOf(err error) string {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Reason
	}
	return ""
}

// DetailFields merges every Struct detail of err into one map.
func DetailFields(err error) map[string]any {
	var cerr *Error
	if !errors.As(err, &cerr) {
		return nil
	}
	out := map[string]any{}
	for _, d := range cerr.Details {
		if st, ok := d.(*structpb.Struct); ok {
			for k, v := range st.AsMap() {
				out[k] = v
			}
		}
	}
	return out
}

// IsRetryable reports whether err is a transient store failure the caller may retry.
func IsRetryable(err error) bool {
	return IsCode(err, Unavailable)
}
