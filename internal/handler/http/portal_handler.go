package http

import (
	"context"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/form/v4"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/sfm-portal/testportal/internal/food"
	"github.com/sfm-portal/testportal/internal/order"
)

// allUsers excludes nobody from food stock sums.
const allUsers int64 = -1

type PortalHandler struct {
	service  order.Service
	menu     *food.Generator
	decoder  *form.Decoder
	validate *validator.Validate
}

func NewPortalHandler(service order.Service, menu *food.Generator) *PortalHandler {
	validate := validator.New()
	// Report fields under their parameter names.
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("form"), ",")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})

	return &PortalHandler{
		service:  service,
		menu:     menu,
		decoder:  form.NewDecoder(),
		validate: validate,
	}
}

func (h *PortalHandler) RegisterRoutes(router chi.Router) {
	router.Get("/menu", h.handleMenu)
	router.Get("/remaining", h.handleRemaining)
	router.Get("/orders", h.handleOrders)
	router.Get("/history", h.handleHistory)
	router.Get("/credit", h.handleCredit)
	router.Get("/order", h.handleOrder)
	router.Post("/order", h.handleOrder)

	router.Route("/actions", func(r chi.Router) {
		r.Get("/change", h.handleChange)
		r.Get("/payment", h.handlePaymentForm)
		r.Get("/addPayment", h.handleAddPayment)
		r.Post("/addPayment", h.handleAddPayment)
	})
}

// readUserQuery parses and validates user and format, answering the request
// itself on failure.
func (h *PortalHandler) readUserQuery(w http.ResponseWriter, r *http.Request) (UserQuery, bool) {
	var query UserQuery
	if !h.decode(w, r, &query) {
		return UserQuery{}, false
	}
	if err := h.validate.Struct(query); err != nil {
		respondWithValidation(w, err)
		return UserQuery{}, false
	}
	return query, true
}

// decode answers the request itself when parameters cannot be decoded.
func (h *PortalHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	details, err := decodeRequest(h.decoder, r, dst)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to decode request parameters")
		respondWithError(w, http.StatusBadRequest, "Invalid request parameters")
		return false
	}
	if len(details) > 0 {
		respondWithJSON(w, http.StatusBadRequest, ValidationErrorResponse{Error: "Validation failed", Details: details})
		return false
	}
	return true
}

func (h *PortalHandler) handleMenu(w http.ResponseWriter, r *http.Request) {
	query, ok := h.readUserQuery(w, r)
	if !ok {
		return
	}

	entries := h.menu.Menu(query.UserID())

	if !query.Text() {
		resp := make([]MenuEntryResponse, 0, len(entries))
		for _, e := range entries {
			resp = append(resp, newMenuEntryResponse(e))
		}
		respondWithJSON(w, http.StatusOK, resp)
		return
	}

	page := menuPage{User: query.UserID(), Rows: make([]menuRow, 0, len(entries))}
	for _, e := range entries {
		row, err := h.menuRow(r.Context(), e, query.UserID())
		if err != nil {
			log.Error().Err(err).Int64("food_id", e.ID.Int64()).Msg("Failed to read ledger for menu via service")
			respondWithError(w, mapErrorToStatusCode(err), "Failed to load menu")
			return
		}
		page.Rows = append(page.Rows, row)
	}
	renderPage(w, pageMenu, page)
}

func (h *PortalHandler) menuRow(ctx context.Context, e food.MenuEntry, userID int64) (menuRow, error) {
	id := e.ID.Int64()
	q, err := h.service.CurrentOrder(ctx, id, userID)
	if err != nil {
		return menuRow{}, err
	}
	stock, err := h.service.RemainingInFoodStock(ctx, id, allUsers)
	if err != nil {
		return menuRow{}, err
	}

	row := menuRow{Entry: e, Reserved: q.Reserved, Offered: q.Offered, Stock: stock}
	row.CanOrder, row.CanOffer = orderLinks(e.Features, stock, q.Reserved)
	return row, nil
}

func (h *PortalHandler) handleRemaining(w http.ResponseWriter, r *http.Request) {
	query, ok := h.readUserQuery(w, r)
	if !ok {
		return
	}

	entries := make([]food.MenuEntry, 0)
	for _, id := range h.menu.TodayIDs() {
		e, err := h.menu.Generate(id, query.UserID())
		if err != nil {
			log.Error().Err(err).Int64("food_id", id.Int64()).Msg("Failed to generate today's food")
			continue
		}
		if !e.Features.RemainingFood && !e.Features.FoodStock {
			continue
		}
		if e.Features.RemainingFood {
			e.Remaining.ToTake = h.menu.RemainingToTake()
		}
		if e.Features.FoodStock {
			stock, err := h.service.RemainingInFoodStock(r.Context(), id.Int64(), allUsers)
			if err != nil {
				log.Error().Err(err).Int64("food_id", id.Int64()).Msg("Failed to sum food stock via service")
				respondWithError(w, mapErrorToStatusCode(err), "Failed to load remaining food")
				return
			}
			e.Remaining.ToOrder = stock
		}
		entries = append(entries, e)
	}

	if query.Text() {
		renderPage(w, pageRemaining, remainingPage{User: query.UserID(), Rows: entries})
		return
	}

	resp := make([]MenuEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, newMenuEntryResponse(e))
	}
	respondWithJSON(w, http.StatusOK, resp)
}

func (h *PortalHandler) handleOrders(w http.ResponseWriter, r *http.Request) {
	query, ok := h.readUserQuery(w, r)
	if !ok {
		return
	}

	rows, err := h.service.UpcomingOrders(r.Context(), query.UserID())
	if err != nil {
		log.Error().Err(err).Int64("user_id", query.UserID()).Msg("Failed to get orders via service")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to get orders")
		return
	}

	if !query.Text() {
		respondWithJSON(w, http.StatusOK, newOrderRowResponses(rows))
		return
	}

	page := ordersPage{User: query.UserID(), Rows: make([]orderRow, 0, len(rows))}
	for _, row := range rows {
		id, err := food.ParseID(*row.FoodID)
		if err != nil {
			log.Warn().Err(err).Int64("row_id", row.ID).Msg("Skipping order with invalid food id")
			continue
		}
		entry, err := h.menu.Generate(id, query.UserID())
		if err != nil {
			log.Warn().Err(err).Int64("row_id", row.ID).Msg("Skipping order with invalid food id")
			continue
		}
		stock, err := h.service.RemainingInFoodStock(r.Context(), id.Int64(), allUsers)
		if err != nil {
			log.Error().Err(err).Int64("food_id", id.Int64()).Msg("Failed to sum food stock via service")
			respondWithError(w, mapErrorToStatusCode(err), "Failed to get orders")
			return
		}

		item := orderRow{Row: row, Entry: entry}
		item.CanOrder, item.CanOffer = orderLinks(entry.Features, stock, row.Reserved)
		page.Rows = append(page.Rows, item)
	}
	renderPage(w, pageOrders, page)
}

func (h *PortalHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	query, ok := h.readUserQuery(w, r)
	if !ok {
		return
	}

	rows, err := h.service.History(r.Context(), query.UserID())
	if err != nil {
		log.Error().Err(err).Int64("user_id", query.UserID()).Msg("Failed to get history via service")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to get history")
		return
	}

	if query.Text() {
		renderPage(w, pageHistory, historyPage{User: query.UserID(), Rows: rows})
		return
	}
	respondWithJSON(w, http.StatusOK, newOrderRowResponses(rows))
}

func (h *PortalHandler) handleCredit(w http.ResponseWriter, r *http.Request) {
	query, ok := h.readUserQuery(w, r)
	if !ok {
		return
	}

	credit := food.Credit(query.UserID())
	if query.Text() {
		renderPage(w, pageCredit, creditPage{User: query.UserID(), Credit: credit})
		return
	}
	respondWithJSON(w, http.StatusOK, CreditResponse{Credit: credit})
}

// handleOrder always answers with order.Result in JSON mode. Text mode
// redirects to the orders page on success.
func (h *PortalHandler) handleOrder(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	details, err := decodeRequest(h.decoder, r, &req)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to decode order parameters")
		respondWithJSON(w, http.StatusBadRequest, order.Result{OK: false, Msg: "invalid request parameters"})
		return
	}
	if len(details) > 0 {
		respondWithJSON(w, http.StatusBadRequest, order.Result{OK: false, Msg: detailsMessage(details)})
		return
	}
	if err := h.validate.Struct(req); err != nil {
		if details, ok := validationDetails(err); ok {
			respondWithJSON(w, http.StatusBadRequest, order.Result{OK: false, Msg: detailsMessage(details)})
			return
		}
		respondWithValidation(w, err)
		return
	}

	domainReq := req.toDomain()
	res, err := h.service.Order(r.Context(), domainReq)
	status := http.StatusOK
	if err != nil {
		status = mapErrorToStatusCode(err)
	}

	if req.Format == formatText {
		if res.OK {
			http.Redirect(w, r, fmt.Sprintf("/orders?user=%d&format=text", domainReq.UserID), http.StatusSeeOther)
			return
		}
		http.Error(w, "Error in inserting order to database:\n"+res.Msg, status)
		return
	}

	respondWithJSON(w, status, res)
}

func (h *PortalHandler) handleChange(w http.ResponseWriter, r *http.Request) {
	var req ChangeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondWithValidation(w, err)
		return
	}
	foodID, userID := *req.ID, *req.User

	id, err := food.ParseID(foodID)
	if err != nil {
		log.Warn().Err(err).Int64("food_id", foodID).Msg("Failed to parse food id")
		respondWithError(w, http.StatusBadRequest, "Invalid food id")
		return
	}
	entry, err := h.menu.Generate(id, userID)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid food id")
		return
	}

	current, err := h.service.CurrentOrder(r.Context(), foodID, userID)
	if err != nil {
		log.Error().Err(err).Int64("food_id", foodID).Int64("user_id", userID).Msg("Failed to get food order via service")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to get food order")
		return
	}
	stock, err := h.service.RemainingInFoodStock(r.Context(), foodID, allUsers)
	if err != nil {
		log.Error().Err(err).Int64("food_id", foodID).Msg("Failed to sum food stock via service")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to get food order")
		return
	}

	renderPage(w, pageChange, changePage{
		User:    userID,
		Dev:     req.Dev,
		Entry:   entry,
		Current: current,
		Bounds:  changeBounds(entry.Features, current, stock, req.Dev),
	})
}

func (h *PortalHandler) handlePaymentForm(w http.ResponseWriter, r *http.Request) {
	query, ok := h.readUserQuery(w, r)
	if !ok {
		return
	}
	renderPage(w, pagePayment, paymentPage{User: query.UserID()})
}

func (h *PortalHandler) handleAddPayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondWithValidation(w, err)
		return
	}

	payment, err := req.toDomain()
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid payment date")
		return
	}

	if _, err := h.service.AddPayment(r.Context(), payment); err != nil {
		log.Error().Err(err).Int64("user_id", payment.UserID).Msg("Failed to add payment via service")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to add payment")
		return
	}

	http.Redirect(w, r, fmt.Sprintf("/history?user=%d&format=text", payment.UserID), http.StatusSeeOther)
}
