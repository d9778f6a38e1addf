package xrocket

type apiResponse[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

type tgInvoice struct {
	ID       int64       `json:"id"`
	Status   string      `json:"status"`
	Link     string      `json:"link"`
	Payments []tgPayment `json:"payments"`
}

type tgPayment struct {
	UserID int64   `json:"userId"`
	Paid   float64 `json:"paid"`
}

type createInvoiceRequest struct {
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	Description string  `json:"description"`
	Payload     string  `json:"payload"`
	ExpiredIn   int     `json:"expiredIn"`
}

type coingeckoPrice struct {
	TheOpenNetwork struct {
		Rub float64 `json:"rub"`
	} `json:"the-open-network"`
}
