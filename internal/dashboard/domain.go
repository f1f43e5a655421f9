// Package dashboard loads and reduces the figures shown on the client and
// admin dashboards.
package dashboard

import (
	"time"

	"github.com/google/uuid"
)

// NoActivityMessage is shown when a client has no transactions yet.
const NoActivityMessage = "Nenhuma atividade recente"

// RecentLimit caps the recent transaction lists on both dashboards.
const RecentLimit = 3

// Transaction is a money movement on a client account.
type Transaction struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Amount      float64
	Type        string
	Status      string
	Description string
	CreatedAt   time.Time
	// OwnerName is only loaded for the admin activity feed.
	OwnerName string
}

// Label is the text shown for the transaction in lists.
func (t Transaction) Label() string {
	if t.Description != "" {
		return t.Description
	}
	return t.Type
}

// IsReturn reports whether the transaction credits investment returns.
func (t Transaction) IsReturn() bool {
	return t.Type == "return"
}

// Investment is an active allocation of a client.
type Investment struct {
	ID              uuid.UUID
	Amount          float64
	ProjectedReturn float64
	StartDate       time.Time
}

// Subscription is the plan subscription a client pays for.
type Subscription struct {
	ID               uuid.UUID
	PlanName         string
	Status           string
	CurrentPeriodEnd time.Time
}

// ClientSummary is the reduced view of a client's portfolio.
type ClientSummary struct {
	TotalInvested      float64
	ProjectedGains     float64
	ActiveInvestments  int
	NextPayment        string
	RecentTransactions []Transaction
	// Degraded is set when a query failed and the figures are defaults.
	Degraded bool
}

// NoActivity reports whether there is nothing to list under recent activity.
func (s ClientSummary) NoActivity() bool {
	return len(s.RecentTransactions) == 0
}

// NoActivityMessage returns the placeholder for an empty activity list.
func (s ClientSummary) NoActivityMessage() string {
	return NoActivityMessage
}

// AdminSummary is the reduced view of the whole book.
type AdminSummary struct {
	TotalClients        int
	TotalRevenue        float64
	ActiveSubscriptions int
	RecentActivity      []Transaction
	Degraded            bool
}
