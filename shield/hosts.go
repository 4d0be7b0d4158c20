package shield

import (
	"net/http"
	"strings"
)

// AllowHosts rejects requests whose Host header is not one of hosts. A
// rebound DNS name still reaches the listener, but carries its own Host.
func AllowHosts(hosts ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(hosts))
	for _, h := range hosts {
		allowed[strings.ToLower(h)] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !allowed[strings.ToLower(r.Host)] {
				http.Error(w, "host not allowed", http.StatusMisdirectedRequest)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
