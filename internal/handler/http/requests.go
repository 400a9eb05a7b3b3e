package http

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/form/v4"

	"github.com/sfm-portal/testportal/internal/order"
)

const (
	formatText = "text"
	formatJSON = "json"

	paymentDateLayout = "2006-01-02"
)

type UserQuery struct {
	User   *int64 `form:"user" validate:"required,gte=0"`
	Format string `form:"format" validate:"omitempty,oneof=text json"`
}

func (q UserQuery) Text() bool { return q.Format == formatText }

func (q UserQuery) UserID() int64 { return *q.User }

type OrderRequest struct {
	ID       *int64 `form:"id" validate:"required,gt=0"`
	User     *int64 `form:"user" validate:"required,gte=0"`
	Reserved *int   `form:"reserved" validate:"required,gte=0,lte=2147483647"`
	Offered  int    `form:"offered" validate:"gte=0,lte=2147483647"`
	Taken    int    `form:"taken" validate:"gte=0,lte=2147483647"`
	Dev      bool   `form:"dev"`
	Format   string `form:"format" validate:"omitempty,oneof=text json"`
}

func (r OrderRequest) toDomain() order.Request {
	return order.Request{
		FoodID: *r.ID,
		UserID: *r.User,
		Quantities: order.Quantities{
			Reserved: *r.Reserved,
			Offered:  r.Offered,
			Taken:    r.Taken,
		},
		Dev: r.Dev,
	}
}

type ChangeRequest struct {
	ID   *int64 `form:"id" validate:"required,gt=0"`
	User *int64 `form:"user" validate:"required,gte=0"`
	Dev  bool   `form:"dev"`
}

type PaymentRequest struct {
	User        *int64 `form:"user" validate:"required,gte=0"`
	Date        string `form:"date" validate:"required,datetime=2006-01-02"`
	Description string `form:"description" validate:"required"`
	Price       *int   `form:"price" validate:"required,gte=0,lte=2147483647"`
	Quantity    *int   `form:"quantity" validate:"required,gte=0,lte=2147483647"`
}

func (r PaymentRequest) toDomain() (order.Payment, error) {
	day, err := time.ParseInLocation(paymentDateLayout, r.Date, time.UTC)
	if err != nil {
		return order.Payment{}, fmt.Errorf("invalid payment date %q: %w", r.Date, err)
	}
	return order.Payment{
		UserID:      *r.User,
		Quantity:    *r.Quantity,
		Price:       *r.Price,
		Description: r.Description,
		Date:        day.Unix(),
	}, nil
}

var errParseParameters = errors.New("failed to parse request parameters")

// decodeRequest fills dst from the query string and form body. Values of the
// wrong type come back as per-parameter details.
func decodeRequest(decoder *form.Decoder, r *http.Request, dst any) (map[string]string, error) {
	if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("%w: %w", errParseParameters, err)
	}

	err := decoder.Decode(dst, r.Form)
	if err == nil {
		return nil, nil
	}

	var decodeErrors form.DecodeErrors
	if !errors.As(err, &decodeErrors) {
		return nil, fmt.Errorf("%w: %w", errParseParameters, err)
	}
	details := make(map[string]string, len(decodeErrors))
	for param := range decodeErrors {
		details[param] = "has an invalid value"
	}
	return details, nil
}
