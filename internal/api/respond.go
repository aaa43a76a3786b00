package api

import (
	"encoding/json"
	"log"
	"net/http"
)

// Response is the uniform envelope every service returns. A fresh value
// is built per request; handlers never share or mutate one across
// branches.
type Response struct {
	IsSuccess bool   `json:"isSuccess"`
	Message   string `json:"message"`
	Result    any    `json:"result,omitempty"`
}

func Success(w http.ResponseWriter, status int, result any) {
	writeJSON(w, status, Response{
		IsSuccess: true,
		Result:    result,
	})
}

func Fail(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Response{
		IsSuccess: false,
		Message:   message,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}
