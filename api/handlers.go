package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sharemind-vm/smas/assembler"
	"github.com/sharemind-vm/smas/instr"
	"github.com/sharemind-vm/smas/linker"
	"github.com/sharemind-vm/smas/parser"
	"github.com/sharemind-vm/smas/tools"
)

// handleHealth responds to health checks
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Version: s.version})
}

// handleAssemble assembles a source program and returns the linked binary
func (s *Server) handleAssemble(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req AssembleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	resp := s.assemble(&req)
	status := http.StatusOK
	if !resp.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, resp)
}

// handleTokens tokenizes a source program and returns the printed stream
func (s *Server) handleTokens(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req TokensRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	printed, lexErr := tokenizeRequest(req.Source, req.Filename)
	if lexErr != nil {
		writeJSON(w, http.StatusUnprocessableEntity, TokensResponse{Error: lexErr})
		return
	}
	writeJSON(w, http.StatusOK, TokensResponse{Success: true, Tokens: printed})
}

// tokenizeRequest lexes a source program and pretty-prints the stream.
func tokenizeRequest(source, filename string) (string, *ErrorInfo) {
	tokens, lexErr := parser.Tokenize(source, filename)
	if lexErr != nil {
		return "", errorInfo(lexErr)
	}
	return tools.FormatTokens(tokens), nil
}

// assemble runs the full pipeline for one request.
func (s *Server) assemble(req *AssembleRequest) *AssembleResponse {
	version := linker.FormatVersionLatest
	if req.FormatVersion != nil {
		version = *req.FormatVersion
	}

	tokens, lexErr := parser.Tokenize(req.Source, req.Filename)
	if lexErr != nil {
		return &AssembleResponse{Error: errorInfo(lexErr)}
	}

	x, err := assembler.Assemble(tokens, instr.Builtin())
	if err != nil {
		return &AssembleResponse{Error: errorInfo(err)}
	}

	image, err := linker.Link(x, version)
	if err != nil {
		return &AssembleResponse{Error: errorInfo(err)}
	}

	return &AssembleResponse{
		Success: true,
		Binary:  base64.StdEncoding.EncodeToString(image),
		Listing: tools.Dump(x, instr.Builtin()),
	}
}

// errorInfo converts a pipeline error into its wire representation.
func errorInfo(err error) *ErrorInfo {
	var lexErr *parser.LexError
	if errors.As(err, &lexErr) {
		return &ErrorInfo{
			Kind:   "lex error",
			Line:   lexErr.Pos.Line,
			Column: lexErr.Pos.Column,
		}
	}

	var asmErr *assembler.Error
	if errors.As(err, &asmErr) {
		info := &ErrorInfo{Kind: asmErr.Kind.String(), Detail: asmErr.Detail}
		if asmErr.Token != nil {
			info.Line = asmErr.Token.Pos.Line
			info.Column = asmErr.Token.Pos.Column
			info.Token = asmErr.Token.Text
		}
		return info
	}

	var linkErr *linker.Error
	if errors.As(err, &linkErr) {
		return &ErrorInfo{Kind: linkErr.Kind.String(), Detail: linkErr.Detail}
	}

	return &ErrorInfo{Kind: "internal error", Detail: err.Error()}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
