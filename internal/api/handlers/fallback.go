package handlers

import (
	"fmt"
	"net/http"
)

// APIFallback отвечает на любой неизвестный запрос к /api/*.
// Статус 200: клиент ожидает JSON с полем message, а не 404.
func APIFallback(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Cannot %s %s", r.Method, r.URL.RequestURI()),
	})
}
