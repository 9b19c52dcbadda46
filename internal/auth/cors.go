package auth

import "net/http"

// corsHeaders is the fixed cross-origin header set written on every response.
var corsHeaders = [...][2]string{
	{"Access-Control-Allow-Origin", "*"},
	{"Access-Control-Allow-Credentials", "true"},
	{"Access-Control-Allow-Headers", "Content-Type, Content-Length, Authorization, Admin-Token, Accept, X-Requested-With"},
	{"Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS"},
	{"Access-Control-Max-Age", "3600"},
	{"Access-Control-Expose-Headers", "*"},
}

func writeCORSHeaders(h http.Header) {
	for _, kv := range corsHeaders {
		h.Set(kv[0], kv[1])
	}
}

func isPreflight(r *http.Request) bool {
	return r.Method == http.MethodOptions
}
