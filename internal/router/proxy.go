package router

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
)

// newReverseProxy builds an httputil.ReverseProxy targeting a local
// service port, injecting the forwarded headers spec section 4.7 names
// and mapping upstream connection failures to the documented status
// codes (502 for other errors, 503 for connect/timeout).
func newReverseProxy(port int) *httputil.ReverseProxy {
	target := &url.URL{Scheme: "http", Host: fmt.Sprintf("127.0.0.1:%d", port)}
	proxy := httputil.NewSingleHostReverseProxy(target)

	originalDirector := proxy.Director
	proxy.Director = func(req *http.Request) {
		forwardedHost := req.Host
		forwardedProto := "http"
		if req.TLS != nil {
			forwardedProto = "https"
		}

		originalDirector(req)
		req.Header.Set("X-Forwarded-Host", forwardedHost)
		req.Header.Set("X-Forwarded-Proto", forwardedProto)

		if clientIP, _, err := net.SplitHostPort(req.RemoteAddr); err == nil {
			if existing := req.Header.Get("X-Forwarded-For"); existing != "" {
				req.Header.Set("X-Forwarded-For", existing+", "+clientIP)
			} else {
				req.Header.Set("X-Forwarded-For", clientIP)
			}
		}
	}

	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		if isTimeoutOrRefused(err) {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}

	return proxy
}

func isTimeoutOrRefused(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "connection refused")
}
