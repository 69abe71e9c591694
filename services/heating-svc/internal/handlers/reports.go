package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"connectrpc.com/connect"

	"heatnet/pkg/apperror"
	"heatnet/pkg/audit"
	"heatnet/pkg/auth"
	"heatnet/pkg/logger"
	"heatnet/services/heating-svc/internal/report"
	"heatnet/services/heating-svc/internal/service"
)

// ReportPath маршрут выгрузки отчёта, формат задаётся параметром format
const ReportPath = "GET /v1/runs/{id}/report"

// ReportHandler отдаёт файл отчёта по сохранённому расчёту. Обычный HTTP,
// чтобы браузер мог скачать файл по ссылке.
type ReportHandler struct {
	svc     *service.HeatingService
	auth    *auth.Manager
	audit   audit.Logger
	service string
}

// NewReportHandler создаёт handler; auth и auditLogger могут быть nil
func NewReportHandler(svc *service.HeatingService, m *auth.Manager, auditLogger audit.Logger, serviceName string) *ReportHandler {
	if auditLogger == nil {
		auditLogger = audit.NoopLogger{}
	}
	return &ReportHandler{svc: svc, auth: m, audit: auditLogger, service: serviceName}
}

func (h *ReportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	entry := audit.NewEntry().
		Service(h.service).
		Method(ReportPath).
		Action(audit.ActionReport).
		Client(r.RemoteAddr, r.UserAgent())

	err := h.serve(w, r, entry)

	switch {
	case err == nil:
		entry.Outcome(audit.OutcomeSuccess)
	case isDenied(err):
		entry.Outcome(audit.OutcomeDenied).Error(string(apperror.Code(err)), err.Error())
	default:
		entry.Outcome(audit.OutcomeFailure).Error(string(apperror.Code(err)), err.Error())
	}
	entry.Duration(time.Since(start))
	if logErr := h.audit.Log(r.Context(), entry.Build()); logErr != nil {
		logger.Log.Warn("Failed to write audit entry", "error", logErr, "path", r.URL.Path)
	}

	if err != nil {
		writeError(w, err)
	}
}

func (h *ReportHandler) serve(w http.ResponseWriter, r *http.Request, entry *audit.Builder) error {
	if h.auth != nil {
		token, err := auth.BearerToken(r.Header.Get("Authorization"))
		if err != nil {
			return apperror.Wrap(err, apperror.CodeUnauthenticated, "bearer token required")
		}
		claims, err := h.auth.Validate(token)
		if err != nil {
			return apperror.Wrap(err, apperror.CodeUnauthenticated, "invalid token")
		}
		entry.Subject(claims.Subject, claims.Role)
		if !claims.Allows(auth.RoleViewer) {
			return apperror.Wrap(auth.ErrForbidden, apperror.CodePermissionDenied, "role is not allowed to read reports")
		}
	}

	id, err := parseRunID(r.PathValue("id"))
	if err != nil {
		return err
	}
	entry.Resource(resourceRun, id.String())

	rawFormat := r.URL.Query().Get("format")
	if rawFormat == "" {
		rawFormat = string(report.FormatPDF)
	}
	format, err := report.ParseFormat(rawFormat)
	if err != nil {
		return err
	}
	entry.Meta("format", string(format))

	out, err := h.svc.RenderReport(r.Context(), id, format)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", out.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+out.FileName+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(out.Content)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(out.Content); err != nil {
		logger.Log.Debug("Failed to write report", "error", err)
	}
	return nil
}

func isDenied(err error) bool {
	return apperror.Is(err, apperror.CodeUnauthenticated) || apperror.Is(err, apperror.CodePermissionDenied)
}

// httpStatus переводит код Connect ошибки в статус HTTP
func httpStatus(err error) int {
	switch connect.CodeOf(apperror.ToConnect(err)) {
	case connect.CodeInvalidArgument, connect.CodeFailedPrecondition:
		return http.StatusBadRequest
	case connect.CodeNotFound:
		return http.StatusNotFound
	case connect.CodeUnauthenticated:
		return http.StatusUnauthorized
	case connect.CodePermissionDenied:
		return http.StatusForbidden
	case connect.CodeDeadlineExceeded:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	body := map[string]string{
		"code":    string(apperror.Code(err)),
		"family":  string(apperror.FamilyOfError(err)),
		"message": err.Error(),
	}
	var appErr *apperror.Error
	if !errors.As(err, &appErr) {
		body["message"] = "internal error"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus(err))
	_ = json.NewEncoder(w).Encode(body)
}
