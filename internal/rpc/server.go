package rpc

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/LeJamon/goVaultd/internal/core/redemption"
)

const maxBodyBytes = 1 << 20

// Server handles HTTP JSON-RPC requests against a serialized engine.
//
// Request format: {"method": "method_name", "params": [{...}]}
// Response format: {"result": {..., "status": "success"}} or
// {"result": {"status": "error", "error": ..., "error_code": ..., "error_message": ...}}
//
// Mutating methods name their caller in a "caller" param. Authenticating
// that caller is the job of whatever fronts this server.
type Server struct {
	registry *MethodRegistry
	vault    *redemption.Serialized
	decimals uint8
	timeout  time.Duration
	logger   *zap.Logger
}

// NewServer creates a server whose amounts are decimal strings with the
// given number of asset decimals.
func NewServer(vault *redemption.Serialized, decimals uint8, timeout time.Duration, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		registry: NewMethodRegistry(),
		vault:    vault,
		decimals: decimals,
		timeout:  timeout,
		logger:   logger,
	}
	s.registerAllMethods()
	return s
}

// Methods lists the registered method names.
func (s *Server) Methods() []string {
	return s.registry.List()
}

// Request is a JSON-RPC request.
type Request struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params,omitempty"`
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	switch r.Method {
	case http.MethodGet:
		s.handleGetRequest(w, r)
	case http.MethodPost:
		s.handlePostRequest(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleGetRequest serves read-only methods named by ?command=.
func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Query().Get("command")
	if method == "" {
		method = "vault_info"
	}
	if _, ok := s.registry.Get(method); ok && !s.registry.IsQuery(method) {
		s.writeResponse(w, method, nil, nil, &Error{
			Code: CodeInvalidRequest, ErrorString: "notQuery", Message: method + " requires POST",
		})
		return
	}
	result, rpcErr := s.execute(r, method, nil)
	s.writeResponse(w, method, nil, result, rpcErr)
}

func (s *Server) handlePostRequest(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeResponse(w, "", nil, nil, ErrorInternal("failed to read request body"))
		return
	}

	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeResponse(w, "", nil, nil, &Error{Code: CodeParseError, ErrorString: "jsonInvalid", Message: "invalid JSON: " + err.Error()})
		return
	}
	if req.Method == "" {
		s.writeResponse(w, "", nil, nil, &Error{Code: CodeInvalidRequest, ErrorString: "missingCommand", Message: "missing method field"})
		return
	}

	var params json.RawMessage
	if len(req.Params) > 0 {
		params = req.Params[0]
	}

	// Echoed on errors so clients can match a failure to its call.
	var echo interface{}
	if params != nil {
		var m map[string]interface{}
		if err := json.Unmarshal(params, &m); err == nil {
			if m == nil {
				m = make(map[string]interface{})
			}
			m["command"] = req.Method
			echo = m
		}
	} else {
		echo = map[string]interface{}{"command": req.Method}
	}

	result, rpcErr := s.execute(r, req.Method, params)
	s.writeResponse(w, req.Method, echo, result, rpcErr)
}

func (s *Server) execute(r *http.Request, method string, params json.RawMessage) (interface{}, *Error) {
	handler, ok := s.registry.Get(method)
	if !ok {
		return nil, ErrorMethodNotFound(method)
	}

	ctx := r.Context()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	result, rpcErr := handler.Handle(&Context{Context: ctx, ClientIP: clientIP(r)}, params)
	if rpcErr != nil {
		level := zap.DebugLevel
		if rpcErr.Code == CodeInternal {
			level = zap.WarnLevel
		}
		s.logger.Check(level, "rpc call failed").Write(
			zap.String("method", method),
			zap.String("error", rpcErr.ErrorString),
			zap.String("message", rpcErr.Message),
		)
		return nil, rpcErr
	}
	s.logger.Debug("rpc call", zap.String("method", method), zap.Duration("took", time.Since(start)))
	return result, nil
}

func (s *Server) writeResponse(w http.ResponseWriter, method string, request interface{}, result interface{}, rpcErr *Error) {
	var resultObj map[string]interface{}
	if rpcErr != nil {
		resultObj = map[string]interface{}{
			"status":        "error",
			"error":         rpcErr.ErrorString,
			"error_code":    rpcErr.Code,
			"error_message": rpcErr.Message,
		}
		if request != nil {
			resultObj["request"] = request
		}
	} else if m, ok := result.(map[string]interface{}); ok {
		m["status"] = "success"
		resultObj = m
	} else {
		resultObj = map[string]interface{}{"status": "success", "data": result}
	}

	data, err := json.Marshal(map[string]interface{}{"result": resultObj})
	if err != nil {
		s.logger.Error("marshal rpc response", zap.String("method", method), zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ip, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(ip)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}
