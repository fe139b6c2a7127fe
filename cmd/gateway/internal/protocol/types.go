package protocol

import "github.com/SunYerim/StockOfGalaxy/pkg/models"

const (
	ActionSubscribe      = "subscribe"
	ActionUnsubscribe    = "unsubscribe"
	ActionUnsubscribeAll = "unsubscribe_all"
)

const (
	TypeAck   = "ack"
	TypeError = "error"
	TypeRows  = "rows" // full board, catalog order
	TypeRow   = "row"  // one changed row
)

type WSRequest struct {
	Action  string         `json:"action"`
	Payload RequestPayload `json:"payload"`
	ID      string         `json:"id,omitempty"`
}

type RequestPayload struct {
	Symbols []string `json:"symbols"`
}

type WSResponse struct {
	Type    string      `json:"type"`             // "ack", "error", "rows", "row"
	ID      string      `json:"id,omitempty"`     // Matches request ID
	Status  string      `json:"status,omitempty"` // "success", "error"
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func RowsMessage(rows []models.DisplayRow) WSResponse {
	return WSResponse{Type: TypeRows, Data: rows}
}

func RowMessage(row models.DisplayRow) WSResponse {
	return WSResponse{Type: TypeRow, Data: row}
}
