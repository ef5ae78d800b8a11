package handler

import (
	"embed"
	"errors"
	"html/template"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/boddenberg/flexcard-bfa-go/internal/domain"
	"github.com/boddenberg/flexcard-bfa-go/internal/service"
)

// ============================================================
// Public card pages
// ============================================================

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type cardPage struct {
	Title       string
	Description string
	ShareURL    string
	VCardURL    string
	Image       string
	Images      []string
	Position    string
	Views       int64
	Info        domain.CardInfo
}

func newCardPage(card *domain.PublishedCard) cardPage {
	info := service.Contact(card)
	page := cardPage{
		Title:       card.Title,
		Description: info.Company,
		ShareURL:    card.ShareURL,
		VCardURL:    card.ShareURL + "/vcard",
		Images:      info.Images,
		Views:       card.ViewCount,
		Info:        info,
	}
	if page.Title == "" {
		page.Title = info.Name
	}
	if page.Description == "" {
		page.Description = "Business card"
	}
	if len(info.Images) > 0 {
		page.Image = info.Images[0]
	}
	if card.Customer != nil {
		page.Position = card.Customer.Position
	}
	return page
}

func cardPageHandler(svc *service.DisplayService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /card/{share_id}")
		defer span.End()

		shareID := chi.URLParam(r, "share_id")
		card, err := svc.View(ctx, shareID, r.Header.Get("Idempotency-Key"))
		if err != nil {
			renderNotFound(w, err, logger)
			return
		}
		renderHTML(w, http.StatusOK, "card.html", newCardPage(card), logger)
	}
}

func vcardHandler(svc *service.DisplayService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /card/{share_id}/vcard")
		defer span.End()

		shareID := chi.URLParam(r, "share_id")
		card, err := svc.Card(ctx, shareID)
		if err != nil {
			renderNotFound(w, err, logger)
			return
		}

		body := service.VCard(card)
		w.Header().Set("Content-Type", "text/vcard; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="`+shareID+`.vcf"`)
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(body))
	}
}

// renderNotFound shows the not-found page for every failure. Errors other
// than a missing card are logged and answered with a 500.
func renderNotFound(w http.ResponseWriter, err error, logger *zap.Logger) {
	status := http.StatusNotFound
	var nf *domain.ErrNotFound
	if !errors.As(err, &nf) {
		status = http.StatusInternalServerError
		logger.Error("card page failed", zap.Error(err))
	}
	renderHTML(w, status, "not_found.html", nil, logger)
}

func renderHTML(w http.ResponseWriter, status int, name string, data any, logger *zap.Logger) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pages.ExecuteTemplate(w, name, data); err != nil {
		logger.Error("render page", zap.String("template", name), zap.Error(err))
	}
}
