package shield

import "net/http"

// HeadToGet rewrites HEAD to GET before routing. The API registers GET
// handlers only, so without the rewrite chi answers every HEAD probe
// (uptime checks, link validators) with 405; net/http drops the body for
// HEAD responses on its own.
func HeadToGet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			r.Method = http.MethodGet
		}
		next.ServeHTTP(w, r)
	})
}
