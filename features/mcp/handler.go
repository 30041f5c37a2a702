package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"medrag/internal/domain"
	"medrag/internal/middleware"
)

type QA interface {
	Answer(ctx context.Context, question string, topK int) (*domain.AnswerRecord, error)
	Search(ctx context.Context, question string, topK int) ([]domain.Passage, error)
}

type Handler struct {
	qa           QA
	sessions     map[string]chan string // sessionId -> serialized JSON-RPC responses
	sessionsLock sync.RWMutex
}

func NewHandler(qa QA) *Handler {
	return &Handler{
		qa:       qa,
		sessions: make(map[string]chan string),
	}
}

type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      interface{}     `json:"id"`
}

type CallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type QuestionArgs struct {
	Question string `json:"question"`
	TopK     *int   `json:"top_k,omitempty"`
}

type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema interface{} `json:"inputSchema"`
}

type ListToolsResult struct {
	Tools []Tool `json:"tools"`
}

type JSONRPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   interface{} `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

type ToolResult struct {
	Content []ToolContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

type ToolContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

const (
	ErrParse          = -32700
	ErrInvalidRequest = -32600
	ErrMethodNotFound = -32601
	ErrInvalidParams  = -32602
	ErrInternal       = -32603
)

// MaxRequestBytes caps the size of a JSON-RPC request body.
const MaxRequestBytes = 1 << 20

const (
	ToolAnswerQuestion = "answer_question"
	ToolSearchPassages = "search_passages"
)

func questionSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"question": map[string]string{
				"type":        "string",
				"description": "The question in natural language",
			},
			"top_k": map[string]interface{}{
				"type":        "integer",
				"description": "Number of passages to retrieve (default from server configuration).",
				"minimum":     1,
				"maximum":     50,
			},
		},
		"required": []string{"question"},
	}
}

func tools() []Tool {
	return []Tool{
		{
			Name: ToolAnswerQuestion,
			Description: `Answers an educational healthcare question from the indexed corpus. Returns a short summary grounded in the retrieved passages, followed by the passages themselves.

The answer is not medical advice. When the language model is unavailable the answer is a vetted fixed statement or the raw retrieved text.`,
			InputSchema: questionSchema(),
		},
		{
			Name:        ToolSearchPassages,
			Description: `Returns the corpus passages closest to the question, with source file and L2 distance. Lower distance means closer.`,
			InputSchema: questionSchema(),
		},
	}
}

// ProcessRequest handles one JSON-RPC request. It returns nil for
// notifications.
func (h *Handler) ProcessRequest(ctx context.Context, req JSONRPCRequest) *JSONRPCResponse {
	switch req.Method {
	case "initialize":
		return &JSONRPCResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result: map[string]interface{}{
				"protocolVersion": "2024-11-05",
				"capabilities": map[string]interface{}{
					"tools": map[string]interface{}{},
				},
				"serverInfo": map[string]interface{}{
					"name":    "medrag-mcp",
					"version": "1.0.0",
				},
			},
		}
	case "notifications/initialized":
		return nil
	case "ping":
		return &JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: map[string]interface{}{}}
	case "tools/list":
		return &JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: ListToolsResult{Tools: tools()}}
	case "tools/call":
		return h.callTool(ctx, req)
	}

	slog.WarnContext(ctx, "unknown jsonrpc method", "method", req.Method)
	resp := makeErrorResponse(req.ID, ErrMethodNotFound, "Method not found")
	return &resp
}

func (h *Handler) callTool(ctx context.Context, req JSONRPCRequest) *JSONRPCResponse {
	var params CallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		slog.WarnContext(ctx, "invalid params structure", "error", err)
		resp := makeErrorResponse(req.ID, ErrInvalidParams, "Invalid params")
		return &resp
	}

	if params.Name != ToolAnswerQuestion && params.Name != ToolSearchPassages {
		slog.WarnContext(ctx, "tool not found", "tool", params.Name)
		resp := makeErrorResponse(req.ID, ErrMethodNotFound, "Method not found: "+params.Name)
		return &resp
	}

	var args QuestionArgs
	if err := json.Unmarshal(params.Arguments, &args); err != nil {
		resp := makeErrorResponse(req.ID, ErrInvalidParams, "Invalid arguments")
		return &resp
	}
	args.Question = strings.TrimSpace(args.Question)
	if args.Question == "" {
		resp := makeErrorResponse(req.ID, ErrInvalidParams, "question is required")
		return &resp
	}
	topK := 0
	if args.TopK != nil {
		if *args.TopK < 1 || *args.TopK > 50 {
			resp := makeErrorResponse(req.ID, ErrInvalidParams, "top_k must be between 1 and 50")
			return &resp
		}
		topK = *args.TopK
	}

	var text string
	var err error
	if params.Name == ToolAnswerQuestion {
		text, err = h.answer(ctx, args.Question, topK)
	} else {
		text, err = h.search(ctx, args.Question, topK)
	}
	if err != nil {
		slog.ErrorContext(ctx, "tool execution failed", "tool", params.Name, "error", err)
		msg := "Error: " + err.Error()
		if errors.Is(err, domain.ErrIndexMissing) {
			msg = "Error: the index has not been built yet."
		}
		return toolResponse(req.ID, msg, true)
	}

	slog.InfoContext(ctx, "tool execution completed", "tool", params.Name)
	return toolResponse(req.ID, text, false)
}

func (h *Handler) answer(ctx context.Context, question string, topK int) (string, error) {
	rec, err := h.qa.Answer(ctx, question, topK)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Answer (%s):\n%s\n", rec.Mode, rec.Answer)
	if len(rec.Contexts) > 0 {
		b.WriteString("\nContexts:\n")
		for i, c := range rec.Contexts {
			fmt.Fprintf(&b, "[%d] %s\n", i+1, c)
		}
	}
	return b.String(), nil
}

func (h *Handler) search(ctx context.Context, question string, topK int) (string, error) {
	passages, err := h.qa.Search(ctx, question, topK)
	if err != nil {
		return "", err
	}
	if len(passages) == 0 {
		return "No results found.", nil
	}
	var b strings.Builder
	for i, p := range passages {
		fmt.Fprintf(&b, "Result %d (Distance: %.4f):\n", i+1, p.Distance)
		if p.Source != "" {
			fmt.Fprintf(&b, "Source: %s\n", p.Source)
		}
		fmt.Fprintf(&b, "Content:\n%s\n\n---\n", p.Text)
	}
	return b.String(), nil
}

func toolResponse(id interface{}, text string, isError bool) *JSONRPCResponse {
	return &JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result: ToolResult{
			Content: []ToolContent{{Type: "text", Text: text}},
			IsError: isError,
		},
	}
}

func makeErrorResponse(id interface{}, code int, message string) JSONRPCResponse {
	return JSONRPCResponse{
		JSONRPC: "2.0",
		Error: map[string]interface{}{
			"code":    code,
			"message": message,
		},
		ID: id,
	}
}

// ServeHTTP is the plain request/response transport.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req JSONRPCRequest
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if isTooLarge(err) {
			h.writeHTTPError(w, http.StatusRequestEntityTooLarge, "REQUEST_TOO_LARGE", "Request body too large",
				middleware.GetCorrelationID(r.Context()))
			return
		}
		h.writeError(w, nil, ErrParse, "Parse error")
		return
	}

	resp := h.ProcessRequest(r.Context(), req)
	if resp == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}

// HandleSSE opens an event stream session. Responses to messages posted to
// the advertised endpoint are delivered on it.
func (h *Handler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sessionID := uuid.New().String()
	msgChan := make(chan string, 100)

	h.sessionsLock.Lock()
	h.sessions[sessionID] = msgChan
	h.sessionsLock.Unlock()

	defer func() {
		h.sessionsLock.Lock()
		delete(h.sessions, sessionID)
		close(msgChan)
		h.sessionsLock.Unlock()
		slog.InfoContext(r.Context(), "sse session ended", "session_id", sessionID)
	}()

	slog.InfoContext(r.Context(), "sse session started", "session_id", sessionID)

	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	endpoint := fmt.Sprintf("%s://%s/mcp/messages?sessionId=%s", scheme, r.Host, sessionID)
	fmt.Fprintf(w, "event: endpoint\ndata: %s\n\n", html.EscapeString(endpoint))
	flusher.Flush()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg := <-msgChan:
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", msg)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// HandleMessage accepts a JSON-RPC message for an SSE session, answers 202
// and processes it in the background.
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	correlationID := middleware.GetCorrelationID(r.Context())

	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		h.writeHTTPError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Missing sessionId", correlationID)
		return
	}

	h.sessionsLock.RLock()
	_, exists := h.sessions[sessionID]
	h.sessionsLock.RUnlock()
	if !exists {
		h.writeHTTPError(w, http.StatusNotFound, "NOT_FOUND", "Session not found", correlationID)
		return
	}

	var req JSONRPCRequest
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if isTooLarge(err) {
			h.writeHTTPError(w, http.StatusRequestEntityTooLarge, "REQUEST_TOO_LARGE", "Request body too large", correlationID)
			return
		}
		h.writeHTTPError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON", correlationID)
		return
	}

	w.WriteHeader(http.StatusAccepted)

	bgCtx := context.WithoutCancel(r.Context())
	go func() {
		resp := h.ProcessRequest(bgCtx, req)
		if resp == nil {
			return
		}
		respBytes, err := json.Marshal(resp)
		if err != nil {
			slog.ErrorContext(bgCtx, "failed to marshal response", "error", err)
			return
		}
		h.deliver(bgCtx, sessionID, string(respBytes))
	}()
}

// deliver holds the read lock while sending so the session cannot be
// closed mid-send.
func (h *Handler) deliver(ctx context.Context, sessionID, msg string) {
	h.sessionsLock.RLock()
	defer h.sessionsLock.RUnlock()

	msgChan, ok := h.sessions[sessionID]
	if !ok {
		slog.WarnContext(ctx, "session closed before response", "session_id", sessionID)
		return
	}
	select {
	case msgChan <- msg:
	default:
		slog.WarnContext(ctx, "session channel full, dropping message", "session_id", sessionID)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, id interface{}, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	// JSON-RPC errors travel in a 200 response body.
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(makeErrorResponse(id, code, message))
}

func (h *Handler) writeHTTPError(w http.ResponseWriter, status int, code string, message string, correlationID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"status": "error",
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
		"correlationId": correlationID,
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func isTooLarge(err error) bool {
	var tooLarge *http.MaxBytesError
	return errors.As(err, &tooLarge)
}
