package api

import "github.com/gin-gonic/gin"

// okBody builds a successful envelope per spec.md §7: "every API returns
// either {ok: true, ...} or {ok: false, error: {kind, message, detail?}}".
// fields are merged alongside "ok".
func okBody(fields gin.H) gin.H {
	out := gin.H{"ok": true}
	for k, v := range fields {
		out[k] = v
	}
	return out
}

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

func errBody(kind, message, detail string) gin.H {
	return gin.H{"ok": false, "error": errorBody{Kind: kind, Message: message, Detail: detail}}
}
