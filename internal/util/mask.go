package util

import (
	"strconv"
	"strings"
)

// MaskToken enmascara un token para logs/diagnóstico.
// Muestra los primeros 4 caracteres y el largo; nunca el token completo.
func MaskToken(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "…(" + strconv.Itoa(len(s)) + ")"
}

// MaskURL enmascara el query string de una URL (puede llevar tokens o firmas).
func MaskURL(s string) string {
	if i := strings.IndexByte(s, '?'); i >= 0 {
		return s[:i] + "?…"
	}
	return s
}
