package client

import (
	"encoding/json"
	"errors"
	"net/http"

	"connectrpc.com/connect"
)

func decodeReportError(status int, body []byte) error {
	e := &ReportError{Status: status}
	if err := json.Unmarshal(body, e); err != nil || e.Code == "" {
		e.Message = http.StatusText(status)
	}
	return e
}

// ErrorCode код приложения из метаданных ошибки Connect или ответа отчёта
func ErrorCode(err error) string {
	var re *ReportError
	if errors.As(err, &re) {
		return re.Code
	}
	var cErr *connect.Error
	if errors.As(err, &cErr) {
		return cErr.Meta().Get("X-Error-Code")
	}
	return ""
}

// ErrorFamily семейство ошибки: TopologyError, ConsistencyError и т.д.
func ErrorFamily(err error) string {
	var re *ReportError
	if errors.As(err, &re) {
		return re.Family
	}
	var cErr *connect.Error
	if errors.As(err, &cErr) {
		return cErr.Meta().Get("X-Error-Family")
	}
	return ""
}
