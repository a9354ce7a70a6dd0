package notify

import (
	"encoding/json"
	"time"

	"finsync/internal/core"
)

// ReauthRequiredMessage tells the notification service a linked account
// needs the user to re-authenticate. Credential references never ride
// along; the consumer only needs identifiers and display data.
type ReauthRequiredMessage struct {
	UserID      string        `json:"user_id"`
	AccountID   string        `json:"account_id"`
	AccountName string        `json:"account_name"`
	Platform    core.Platform `json:"platform"`
	Timestamp   time.Time     `json:"timestamp"`
}

// SyncCompletedMessage announces a successful account sync with new
// transactions.
type SyncCompletedMessage struct {
	UserID           string        `json:"user_id"`
	AccountName      string        `json:"account_name"`
	Platform         core.Platform `json:"platform"`
	TransactionCount int           `json:"transaction_count"`
	Timestamp        time.Time     `json:"timestamp"`
}

// BudgetAlertMessage asks the downstream alert processor to re-evaluate a
// user's budgets after expense activity changed.
type BudgetAlertMessage struct {
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

func (m *ReauthRequiredMessage) ToJSON() ([]byte, error) { return json.Marshal(m) }

func (m *SyncCompletedMessage) ToJSON() ([]byte, error) { return json.Marshal(m) }

func (m *BudgetAlertMessage) ToJSON() ([]byte, error) { return json.Marshal(m) }

// BudgetAlertMessageFromJSON decodes a budget alert message body.
func BudgetAlertMessageFromJSON(data []byte) (*BudgetAlertMessage, error) {
	var msg BudgetAlertMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
