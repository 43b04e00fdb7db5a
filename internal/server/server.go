package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"sitechat/internal/llm"
	"sitechat/internal/rag"
)

// Server is the HTTP surface over the RAG engine. Its fields are set once
// at startup and never mutated, so handlers are safe to run concurrently.
// The server holds no conversation state: callers supply the full history
// with each request.
type Server struct {
	engine    *rag.Engine
	ragLoaded bool
	llmReady  bool
}

// New wraps an engine. An engine with a nil Index serves liveness endpoints
// but answers /getMsg with 503 until an index is built.
func New(engine *rag.Engine) *Server {
	return &Server{
		engine:    engine,
		ragLoaded: engine != nil && engine.Index != nil,
		llmReady:  engine != nil && engine.LLM != nil,
	}
}

// Handler returns the routed handler with CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/getMsg", s.handleGetMsg)
	mux.HandleFunc("/reset", s.handleReset)
	return withCORS(mux)
}

type chatMessage struct {
	Content string `json:"content"`
	Role    string `json:"role"`
}

type chatRequest struct {
	Content             string        `json:"content"`
	Role                string        `json:"role,omitempty"`
	ConversationHistory []chatMessage `json:"conversation_history,omitempty"`
}

type chatResponse struct {
	Content string   `json:"content"`
	Role    string   `json:"role"`
	Sources []string `json:"sources,omitempty"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "online",
		"message":    "sitechat RAG chatbot API is running",
		"rag_loaded": s.ragLoaded,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "healthy",
		"rag_system": map[string]any{
			"initialized":        s.engine != nil,
			"vectorstore_loaded": s.ragLoaded,
		},
		"llm": map[string]any{
			"initialized": s.llmReady,
		},
	})
}

func (s *Server) handleGetMsg(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.ragLoaded {
		writeError(w, http.StatusServiceUnavailable, "RAG system not initialized. Run 'sitechat scrape' to build the index.")
		return
	}
	if !s.llmReady {
		writeError(w, http.StatusServiceUnavailable, "LLM not initialized. Check the API key configuration.")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	history := make([]llm.Message, 0, len(req.ConversationHistory))
	for _, m := range req.ConversationHistory {
		switch m.Role {
		case "user":
			history = append(history, llm.Message{Role: llm.RoleUser, Content: m.Content})
		case "bot", "assistant":
			history = append(history, llm.Message{Role: llm.RoleAssistant, Content: m.Content})
		}
	}

	answer, sources, err := s.engine.Respond(r.Context(), req.Content, history)
	if err != nil {
		if errors.Is(err, rag.ErrEmptyInput) {
			writeError(w, http.StatusBadRequest, "Message content cannot be empty")
			return
		}
		log.Printf("error processing message: %v", err)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Error processing your message: %v", err))
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Content: answer,
		Role:    "bot",
		Sources: sources,
	})
}

// handleReset exists for client compatibility. The server keeps no
// conversation state, so there is nothing to clear.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "Conversation history cleared",
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
