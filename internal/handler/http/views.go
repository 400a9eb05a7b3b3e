package http

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sfm-portal/testportal/internal/food"
	"github.com/sfm-portal/testportal/internal/order"
)

//go:embed templates/*.html
var templateFS embed.FS

var templateFuncs = template.FuncMap{
	"day": func(t time.Time) string {
		return t.UTC().Format("2006-01-02")
	},
	"stamp": func(seconds int64) string {
		return time.Unix(seconds, 0).UTC().Format("2006-01-02 15:04")
	},
	"deref": func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	},
	"foodID": func(id *int64) string {
		if id == nil {
			return ""
		}
		return strconv.FormatInt(*id, 10)
	},
	"changeURL": changeURL,
}

const (
	pageMenu      = "menu.html"
	pageOrders    = "orders.html"
	pageHistory   = "history.html"
	pageRemaining = "remaining.html"
	pageCredit    = "credit.html"
	pageChange    = "change.html"
	pagePayment   = "payment.html"
)

var pages = parsePages(pageMenu, pageOrders, pageHistory, pageRemaining, pageCredit, pageChange, pagePayment)

func parsePages(names ...string) map[string]*template.Template {
	parsed := make(map[string]*template.Template, len(names))
	for _, name := range names {
		parsed[name] = template.Must(
			template.New(name).Funcs(templateFuncs).ParseFS(templateFS, "templates/layout.html", "templates/"+name),
		)
	}
	return parsed
}

// renderPage renders into a buffer first so a template error still yields a
// clean 500.
func renderPage(w http.ResponseWriter, name string, data any) {
	tmpl, ok := pages[name]
	if !ok {
		log.Error().Str("page", name).Msg("Unknown page template")
		http.Error(w, "unknown page", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		log.Error().Err(err).Str("page", name).Msg("Failed to render page")
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		log.Error().Err(err).Str("page", name).Msg("Failed to write page")
	}
}

// menuRow is a menu entry with the user's ledger state next to it.
type menuRow struct {
	Entry    food.MenuEntry
	Reserved int
	Offered  int
	Stock    int
	CanOrder bool
	CanOffer bool
}

type menuPage struct {
	User int64
	Rows []menuRow
}

type orderRow struct {
	Row      order.Row
	Entry    food.MenuEntry
	CanOrder bool
	CanOffer bool
}

type ordersPage struct {
	User int64
	Rows []orderRow
}

type historyPage struct {
	User int64
	Rows []order.Row
}

type remainingPage struct {
	User int64
	Rows []food.MenuEntry
}

type creditPage struct {
	User   int64
	Credit int64
}

type changePage struct {
	User    int64
	Dev     bool
	Entry   food.MenuEntry
	Current order.Quantities
	Bounds  ChangeBounds
}

type paymentPage struct {
	User int64
}

// ChangeBounds limits the inputs of the change form. ReservedMax < 0 means
// no upper bound.
type ChangeBounds struct {
	ReservedMin int
	ReservedMax int
	OfferedMax  int
	TakenMax    int
}

func (b ChangeBounds) HasReservedMax() bool { return b.ReservedMax >= 0 }

// changeBounds mirrors what the engine accepts: a closed window only lets the
// user grow up to what others offer, and offering needs a closed window.
func changeBounds(features food.Features, current order.Quantities, stock int, dev bool) ChangeBounds {
	b := ChangeBounds{
		ReservedMin: 0,
		ReservedMax: -1,
		OfferedMax:  current.Reserved,
		TakenMax:    current.Reserved,
	}
	if !features.Orders && !dev {
		b.ReservedMin = current.Reserved
		b.ReservedMax = current.Reserved + stock - current.Offered
	}
	if features.Orders && !dev {
		b.OfferedMax = 0
	}
	return b
}

// orderLinks decides which user actions a food offers: ordering needs an open
// window or food stock left, offering needs food stock support and a reservation.
func orderLinks(features food.Features, stock, reserved int) (canOrder, canOffer bool) {
	canOrder = features.Orders || (features.FoodStock && stock > 0)
	canOffer = features.FoodStock && reserved > 0
	return canOrder, canOffer
}

func changeURL(id food.ID, user int64, dev bool) string {
	return fmt.Sprintf("/actions/change?id=%d&user=%d&dev=%t", id.Int64(), user, dev)
}
