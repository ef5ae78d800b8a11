package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/boddenberg/flexcard-bfa-go/internal/domain"
	"github.com/boddenberg/flexcard-bfa-go/internal/flex"
	"github.com/boddenberg/flexcard-bfa-go/internal/service"
)

// ============================================================
// Card publishing
// ============================================================

func publishCardHandler(svc *service.PublisherService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /cards/publish")
		defer span.End()

		var req domain.PublishRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		resp, err := svc.Publish(ctx, req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func listPublishedHandler(svc *service.PublisherService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /cards/published")
		defer span.End()

		cards, err := svc.ListPublished(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, cards)
	}
}

func getPublishedHandler(svc *service.PublisherService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /cards/published/{customer_id}")
		defer span.End()

		id, err := pathID(r, "customer_id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		card, err := svc.GetPublished(ctx, id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, card)
	}
}

func unpublishHandler(svc *service.PublisherService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /cards/unpublish/{customer_id}")
		defer span.End()

		id, err := pathID(r, "customer_id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if err := svc.Unpublish(ctx, id); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "card unpublished"})
	}
}

func previewCardHandler(svc *service.PublisherService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /cards/preview/{customer_id}")
		defer span.End()

		id, err := pathID(r, "customer_id")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		preview, err := svc.Preview(ctx, id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, preview)
	}
}

func templatesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"templates": flex.Templates()})
	}
}

func cardStatsHandler(svc *service.PublisherService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /cards/stats")
		defer span.End()

		stats, err := svc.Stats(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

func exportCardsHandler(svc *service.PublisherService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /cards/export")
		defer span.End()

		export, err := svc.Export(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.Header().Set("Content-Disposition", `attachment; filename="cards-export.json"`)
		writeJSON(w, http.StatusOK, export)
	}
}

// ============================================================
// Import
// ============================================================

func importCardHandler(svc *service.ImportService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /cards/import")
		defer span.End()

		var req domain.ImportRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		resp, err := svc.Import(ctx, req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func parseFlexHandler(svc *service.ImportService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /cards/parse-flex")
		defer span.End()

		var req struct {
			FlexJSON json.RawMessage `json:"flex_json"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}

		resp, err := svc.ParseFlex(ctx, req.FlexJSON)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
