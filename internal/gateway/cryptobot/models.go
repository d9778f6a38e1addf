package cryptobot

// apiResponse — конверт всех ответов Crypto Pay API.
type apiResponse[T any] struct {
	Ok     bool      `json:"ok"`
	Result T         `json:"result"`
	Error  *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code int    `json:"code"`
	Name string `json:"name"`
}

type exchangeRate struct {
	IsValid bool   `json:"is_valid"`
	Source  string `json:"source"`
	Target  string `json:"target"`
	Rate    string `json:"rate"`
}

type invoice struct {
	InvoiceID int64  `json:"invoice_id"`
	Status    string `json:"status"`
	Asset     string `json:"asset"`
	Amount    string `json:"amount"`
	PayURL    string `json:"bot_invoice_url"`
	Payload   string `json:"payload"`
}

type invoicesResult struct {
	Items []invoice `json:"items"`
}

type createInvoiceRequest struct {
	Asset     string `json:"asset"`
	Amount    string `json:"amount"`
	Payload   string `json:"payload"`
	ExpiresIn int    `json:"expires_in"`
}
