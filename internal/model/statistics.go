package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DashboardStats aggregates client, filing and budget figures for a date range
type DashboardStats struct {
	Clients            []TypeCount         `json:"clients"`
	ActiveClients      int64               `json:"active_clients"`
	Filings            []StatusCount       `json:"filings"`
	Budgets            []BudgetStatusTotal `json:"budgets"`
	AcceptedValue      decimal.Decimal     `json:"accepted_value"`
	UpcomingDeadlines  []Deadline          `json:"upcoming_deadlines"`
	TopClients         []ClientRanking     `json:"top_clients"`
	TimeRangeStartDate time.Time           `json:"time_range_start_date"`
	TimeRangeEndDate   time.Time           `json:"time_range_end_date"`
}

type TypeCount struct {
	Type  string `json:"type"`
	Count int64  `json:"count"`
}

type StatusCount struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

type BudgetStatusTotal struct {
	Status string          `json:"status"`
	Count  int64           `json:"count"`
	Total  decimal.Decimal `json:"total"`
}

// Deadline is an open filing close to its due date
type Deadline struct {
	FilingID     string    `json:"filing_id"`
	ClientID     string    `json:"client_id"`
	ClientName   string    `json:"client_name"`
	TaxModelCode string    `json:"tax_model_code"`
	Period       string    `json:"period"`
	Year         int       `json:"year"`
	DueDate      time.Time `json:"due_date"`
	Status       string    `json:"status"`
	DaysLeft     int       `json:"days_left"`
}

// ClientRanking ranks clients by their open (pending or overdue) filings
type ClientRanking struct {
	ClientID    string `json:"client_id"`
	ClientName  string `json:"client_name"`
	OpenFilings int64  `json:"open_filings"`
	Overdue     int64  `json:"overdue"`
}
