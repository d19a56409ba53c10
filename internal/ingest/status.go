package ingest

import "net/http"

// HTTPStatus maps a pipeline error to the status a handler should answer with.
func HTTPStatus(err error) int {
	switch Kind(err) {
	case "ok":
		return http.StatusOK
	case "decode":
		return http.StatusUnprocessableEntity
	case "network":
		return http.StatusGatewayTimeout
	case "http_status", "api", "malformed":
		return http.StatusBadGateway
	case "canceled":
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}
