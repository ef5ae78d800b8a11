package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/boddenberg/flexcard-bfa-go/internal/domain"
	"github.com/boddenberg/flexcard-bfa-go/internal/service"
)

// ============================================================
// LINE messaging
// ============================================================

func sendCardHandler(svc *service.MessagingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /line/send-card/{customer_id}")
		defer span.End()

		id, err := pathID(r, "customer_id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		resp, err := svc.SendCard(ctx, id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func sendCardBatchHandler(svc *service.MessagingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /line/send-card-batch")
		defer span.End()

		var req domain.BatchRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		resp, err := svc.SendBatch(ctx, req.CustomerIDs)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func testConnectionHandler(svc *service.MessagingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /line/test-connection")
		defer span.End()

		resp, err := svc.TestConnection(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getLineConfigHandler(svc *service.LineSettingsService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Status(r.Context()))
	}
}

func updateLineConfigHandler(svc *service.LineSettingsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /line/config")
		defer span.End()

		var req domain.LineConfigUpdate
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := svc.Update(ctx, req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "LINE settings saved"})
	}
}
