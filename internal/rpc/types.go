package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	"github.com/LeJamon/goVaultd/internal/core/vaulterr"
)

// Error codes. The JSON-RPC range covers envelope problems; the positive
// range maps one code to each vault failure kind.
const (
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternal       = -32603
	CodeParseError     = -32700

	CodeValidation         = 40
	CodeStateConflict      = 41
	CodeTemporalGuard      = 42
	CodeQuotaExceeded      = 43
	CodeLiquidityShortfall = 44
	CodeAuthorization      = 45
	CodeInvariantViolation = 46
	CodePaused             = 47
	CodeReentrancy         = 48
)

var kindCodes = map[vaulterr.Kind]int{
	vaulterr.KindValidation:         CodeValidation,
	vaulterr.KindStateConflict:      CodeStateConflict,
	vaulterr.KindTemporalGuard:      CodeTemporalGuard,
	vaulterr.KindQuotaExceeded:      CodeQuotaExceeded,
	vaulterr.KindLiquidityShortfall: CodeLiquidityShortfall,
	vaulterr.KindAuthorization:      CodeAuthorization,
	vaulterr.KindInvariantViolation: CodeInvariantViolation,
	vaulterr.KindPaused:             CodePaused,
	vaulterr.KindReentrancy:         CodeReentrancy,
}

// Error is a method failure as written into the result object.
type Error struct {
	Code        int    `json:"error_code"`
	ErrorString string `json:"error"`
	Message     string `json:"error_message,omitempty"`
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.ErrorString
}

func ErrorMethodNotFound(method string) *Error {
	return &Error{Code: CodeMethodNotFound, ErrorString: "unknownCmd", Message: "unknown method: " + method}
}

func ErrorInvalidParams(msg string) *Error {
	return &Error{Code: CodeInvalidParams, ErrorString: "invalidParams", Message: msg}
}

func ErrorInternal(msg string) *Error {
	return &Error{Code: CodeInternal, ErrorString: "internal", Message: msg}
}

// FromError classifies an engine error by its vault kind. Errors without a
// kind, such as a failed checkpoint write, are internal.
func FromError(err error) *Error {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	kind := vaulterr.KindOf(err)
	code, ok := kindCodes[kind]
	if !ok {
		return ErrorInternal(err.Error())
	}
	return &Error{Code: code, ErrorString: kind.String(), Message: err.Error()}
}

// Context carries per-call information into a method.
type Context struct {
	context.Context
	ClientIP string
}

// MethodHandler executes one RPC method. params is the first element of
// the request's params array, or nil.
type MethodHandler interface {
	Handle(ctx *Context, params json.RawMessage) (interface{}, *Error)
}

// MethodFunc adapts a function to MethodHandler.
type MethodFunc func(ctx *Context, params json.RawMessage) (interface{}, *Error)

func (f MethodFunc) Handle(ctx *Context, params json.RawMessage) (interface{}, *Error) {
	return f(ctx, params)
}

// MethodRegistry maps method names to handlers.
type MethodRegistry struct {
	methods  map[string]MethodHandler
	readOnly map[string]bool
}

func NewMethodRegistry() *MethodRegistry {
	return &MethodRegistry{
		methods:  make(map[string]MethodHandler),
		readOnly: make(map[string]bool),
	}
}

// Register adds a method that may change vault state.
func (r *MethodRegistry) Register(name string, handler MethodHandler) {
	r.methods[name] = handler
}

// RegisterQuery adds a method that only reads. Queries may also be called
// with GET.
func (r *MethodRegistry) RegisterQuery(name string, handler MethodHandler) {
	r.methods[name] = handler
	r.readOnly[name] = true
}

func (r *MethodRegistry) Get(name string) (MethodHandler, bool) {
	h, ok := r.methods[name]
	return h, ok
}

func (r *MethodRegistry) IsQuery(name string) bool {
	return r.readOnly[name]
}

// List returns the registered method names in order.
func (r *MethodRegistry) List() []string {
	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
