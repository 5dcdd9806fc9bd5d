package utils

import (
	"encoding/json"
	"log"
	"net/http"
)

// RespondJSON 按给定状态码写出 JSON 响应体。
// 编码失败时状态码已经发出，只能记录日志。
func RespondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[http] encode response failed: %v", err)
	}
}

// RespondError 以 {"error": message} 形式写出错误响应。
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, map[string]string{"error": message})
}
