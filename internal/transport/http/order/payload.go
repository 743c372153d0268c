package order

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	service "github.com/Additional-Code/orderdesk/internal/service/order"
	"github.com/Additional-Code/orderdesk/pkg/errorbank"
)

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// flexStrings accepts a JSON array of strings or numbers, or a single value.
type flexStrings []string

func (f *flexStrings) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var items []flexString
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		out := make([]string, len(items))
		for i, it := range items {
			out[i] = string(it)
		}
		*f = out
		return nil
	}
	var one flexString
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	if one == "" {
		*f = nil
		return nil
	}
	*f = flexStrings{string(one)}
	return nil
}

// UnmarshalParam binds a single form or query value.
func (f *flexString) UnmarshalParam(param string) error {
	*f = flexString(param)
	return nil
}

// UnmarshalParams binds every value of a repeated form field.
func (f *flexStrings) UnmarshalParams(params []string) error {
	*f = append(flexStrings(nil), params...)
	return nil
}

type linesPayload struct {
	OrderTypeID flexString  `json:"order_type_id" form:"order_type_id"`
	ProductIDs  flexStrings `json:"product_id" form:"product_id"`
	Quantities  flexStrings `json:"quantity" form:"quantity"`
	PricesUSD   flexStrings `json:"usd" form:"usd"`

	// Bracketed spellings of the repeated form fields.
	ProductIDList flexStrings `json:"-" form:"product_id[]"`
	QuantityList  flexStrings `json:"-" form:"quantity[]"`
	PriceUSDList  flexStrings `json:"-" form:"usd[]"`
}

func (p *linesPayload) batch() service.LineBatch {
	return service.LineBatch{
		ProductIDs: either(p.ProductIDs, p.ProductIDList),
		Quantities: either(p.Quantities, p.QuantityList),
		PricesUSD:  either(p.PricesUSD, p.PriceUSDList),
	}
}

func either(plain, bracketed flexStrings) []string {
	if len(plain) > 0 {
		return plain
	}
	return bracketed
}

type searchPayload struct {
	BranchID    flexString `json:"branch_id" form:"branch_id"`
	OrderTypeID flexString `json:"order_type_id" form:"order_type_id"`
	Status      flexString `json:"status" form:"status"`
	From        flexString `json:"from" form:"from"`
	To          flexString `json:"to" form:"to"`
	Page        flexString `json:"page" form:"page" query:"page"`
	Limit       flexString `json:"limit" form:"limit" query:"limit"`
}

type lineEditPayload struct {
	OrderID     flexString `json:"order_id" form:"order_id"`
	Quantity    flexString `json:"quantity" form:"quantity"`
	OrderTypeID flexString `json:"order_type_id" form:"order_type_id"`
}

type deadlinePayload struct {
	Deadline flexString `json:"deadline" form:"deadline"`
}

type statusPayload struct {
	Status flexString `json:"status" form:"status"`
}

type browsePayload struct {
	Page  flexString `query:"page"`
	Limit flexString `query:"limit"`
}

func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return errorbank.BadRequest("invalid payload", errorbank.WithCause(err))
	}
	return nil
}

// bindSearch reads paging from the query string when the body omits it.
func bindSearch(c echo.Context) (searchPayload, error) {
	var p searchPayload
	if err := bind(c, &p); err != nil {
		return p, err
	}
	if p.Page == "" {
		p.Page = flexString(c.QueryParam("page"))
	}
	if p.Limit == "" {
		p.Limit = flexString(c.QueryParam("limit"))
	}
	return p, nil
}

// optionalInt parses an absent value as zero.
func optionalInt(raw flexString, field string) (int, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errorbank.BadRequest("invalid "+field, errorbank.WithDetail(field, s))
	}
	return n, nil
}

func requiredID(raw string, field string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, errorbank.BadRequest("invalid "+field, errorbank.WithDetail(field, raw))
	}
	return id, nil
}
