package audit

import (
	"encoding/json"
	"log"
	"time"

	"github.com/shopspring/decimal"
)

type Event struct {
	Timestamp     time.Time `json:"timestamp"`
	EventType     string    `json:"event_type"`
	OrderID       string    `json:"order_id,omitempty"`
	TransactionID string    `json:"transaction_id,omitempty"`
	Provider      string    `json:"provider,omitempty"`
	Amount        string    `json:"amount,omitempty"`
	Status        string    `json:"status"`
	Details       any       `json:"details,omitempty"`
}

type Logger struct{}

func NewLogger() *Logger {
	return &Logger{}
}

func (a *Logger) LogPayment(eventType, orderID, transactionID, provider string, amount decimal.Decimal, status string) {
	a.log(Event{
		Timestamp:     time.Now(),
		EventType:     eventType,
		OrderID:       orderID,
		TransactionID: transactionID,
		Provider:      provider,
		Amount:        amount.StringFixed(2),
		Status:        status,
	})
}

func (a *Logger) LogSync(orderID, invoiceNumber, receiptID, status string) {
	a.log(Event{
		Timestamp: time.Now(),
		EventType: "ZOHO_SYNC",
		OrderID:   orderID,
		Status:    status,
		Details: map[string]string{
			"invoice_number": invoiceNumber,
			"receipt_id":     receiptID,
		},
	})
}

func (a *Logger) LogError(orderID, transactionID string, err error) {
	a.log(Event{
		Timestamp:     time.Now(),
		EventType:     "ERROR",
		OrderID:       orderID,
		TransactionID: transactionID,
		Status:        "FAILED",
		Details:       map[string]string{"error": err.Error()},
	})
}

func (a *Logger) log(event Event) {
	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))
}
