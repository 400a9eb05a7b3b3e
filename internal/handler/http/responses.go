package http

import (
	"strconv"

	"github.com/sfm-portal/testportal/internal/food"
	"github.com/sfm-portal/testportal/internal/order"
)

// MenuEntryResponse is the menu row shape the client app parses.
type MenuEntryResponse struct {
	RelativeID       string `json:"relativeId"`
	Text             string `json:"text"`
	Group            string `json:"group"`
	Label            string `json:"label"`
	Date             int64  `json:"date"`
	Price            int    `json:"price"`
	Features         int    `json:"features"`
	RemainingToOrder int    `json:"remainingToOrder"`
	RemainingToTake  int    `json:"remainingToTake"`
}

func newMenuEntryResponse(e food.MenuEntry) MenuEntryResponse {
	return MenuEntryResponse{
		RelativeID:       strconv.FormatInt(e.ID.Int64(), 10),
		Text:             e.Text,
		Group:            e.Group,
		Label:            e.Name,
		Date:             e.DateMillis(),
		Price:            e.Price,
		Features:         e.Features.Bits(),
		RemainingToOrder: e.Remaining.ToOrder,
		RemainingToTake:  e.Remaining.ToTake,
	}
}

// OrderRowResponse is one row of the orders and history listings.
type OrderRowResponse struct {
	ID          int64   `json:"_ID"`
	Date        int64   `json:"Date"`
	FoodID      *int64  `json:"FoodId"`
	Type        string  `json:"Type"`
	Reserved    int     `json:"Reserved"`
	Offered     int     `json:"Offered"`
	Taken       int     `json:"Taken"`
	Description *string `json:"Description"`
	Price       int     `json:"Price"`
}

func newOrderRowResponses(rows []order.Row) []OrderRowResponse {
	resp := make([]OrderRowResponse, 0, len(rows))
	for _, r := range rows {
		resp = append(resp, OrderRowResponse{
			ID:          r.ID,
			Date:        r.Date * 1000,
			FoodID:      r.FoodID,
			Type:        r.Type.String(),
			Reserved:    r.Reserved,
			Offered:     r.Offered,
			Taken:       r.Taken,
			Description: r.Description,
			Price:       r.Price,
		})
	}
	return resp
}

type CreditResponse struct {
	Credit int64 `json:"credit"`
}
