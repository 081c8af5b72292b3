// Package domain provides the wire types exchanged with the message-parsing
// backend and the display-level values derived from them.
//
// Response shapes are validated at the API boundary: every type that can be
// decoded from a response exposes a Validate method, and the client rejects
// bodies that fail it as malformed.
package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// JobStatus is the lifecycle state of the backend's batch processing job.
type JobStatus string

const (
	JobIdle       JobStatus = "idle"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobError      JobStatus = "error"
)

// Terminal reports whether polling stops at this status.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobError
}

func (s JobStatus) valid() bool {
	switch s {
	case JobIdle, JobProcessing, JobCompleted, JobError:
		return true
	}
	return false
}

// ProcessingStatus is the progress report of the batch processing job.
type ProcessingStatus struct {
	Total     int       `json:"total"`
	Processed int       `json:"processed"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Status    JobStatus `json:"status"`

	// Extras reported by newer backends; absent on older ones.
	ProgressPercentage        *float64 `json:"progress_percentage,omitempty"`
	EstimatedRemainingSeconds *float64 `json:"estimated_remaining_seconds,omitempty"`
}

// IdleStatus is the status a session starts from.
func IdleStatus() ProcessingStatus {
	return ProcessingStatus{Status: JobIdle}
}

// Terminal reports whether the job has completed or failed.
func (p ProcessingStatus) Terminal() bool {
	return p.Status.Terminal()
}

// Validate checks the counter invariants and the status enum.
func (p ProcessingStatus) Validate() error {
	if !p.Status.valid() {
		return fmt.Errorf("unknown processing status %q", p.Status)
	}
	if p.Total < 0 || p.Processed < 0 || p.Succeeded < 0 || p.Failed < 0 {
		return fmt.Errorf("negative processing counters: %+v", p)
	}
	if p.Processed > p.Total {
		return fmt.Errorf("processed %d exceeds total %d", p.Processed, p.Total)
	}
	if p.Succeeded+p.Failed > p.Processed {
		return fmt.Errorf("succeeded+failed %d exceeds processed %d", p.Succeeded+p.Failed, p.Processed)
	}
	return nil
}

// MessageTypeStat is one per-type aggregate row returned by the backend.
// The category-specific fields are zero when they do not apply.
type MessageTypeStat struct {
	MessageType    string `json:"message_type"`
	Count          int    `json:"count"`
	TotalAmount    Amount `json:"total_amount"`
	UniqueLoans    int    `json:"unique_loans,omitempty"`
	UniqueFolios   int    `json:"unique_folios,omitempty"`
	UniquePolicies int    `json:"unique_policies,omitempty"`
	MaxOutstanding Amount `json:"max_outstanding"`
}

// Customer is a customer record.
type Customer struct {
	CustomerID  string `json:"customer_id"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
	CreatedAt   string `json:"created_at"`
}

// UnmarshalJSON accepts the backend's customer_name spelling as well as name.
func (c *Customer) UnmarshalJSON(data []byte) error {
	type plain Customer
	var aux struct {
		plain
		CustomerName string `json:"customer_name"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*c = Customer(aux.plain)
	if c.Name == "" {
		c.Name = aux.CustomerName
	}
	return nil
}

// Validate checks that the customer carries an id.
func (c Customer) Validate() error {
	if strings.TrimSpace(c.CustomerID) == "" {
		return fmt.Errorf("customer without customer_id")
	}
	return nil
}

// Transaction is a parsed financial transaction. The base fields are always
// present; the optional fields belong to specific message types.
type Transaction struct {
	MessageType string `json:"message_type"`
	Amount      Amount `json:"amount"`
	CreatedAt   string `json:"created_at"`

	LoanReference    string `json:"loan_reference,omitempty"`
	FolioNumber      string `json:"folio_number,omitempty"`
	PolicyNumber     string `json:"policy_number,omitempty"`
	TotalOutstanding Amount `json:"total_outstanding"`
}

// Reference returns the type-specific reference (loan, folio or policy),
// or an empty string for types without one.
func (t Transaction) Reference() string {
	switch strings.ToUpper(t.MessageType) {
	case "EMI_PAYMENT":
		return t.LoanReference
	case "SIP_INVESTMENT":
		return t.FolioNumber
	case "INSURANCE_PAYMENT":
		return t.PolicyNumber
	}
	return ""
}

// Validate checks that the transaction carries a message type.
func (t Transaction) Validate() error {
	if strings.TrimSpace(t.MessageType) == "" {
		return fmt.Errorf("transaction without message_type")
	}
	return nil
}

// SummaryData is the dashboard-wide aggregate. It is always replaced as a
// whole, never patched.
type SummaryData struct {
	TotalCustomers     int               `json:"total_customers"`
	TotalTransactions  int               `json:"total_transactions"`
	MessageTypeStats   []MessageTypeStat `json:"message_type_stats"`
	RecentTransactions []Transaction     `json:"recent_transactions"`
}

// Validate checks the nested transactions.
func (s SummaryData) Validate() error {
	if s.TotalCustomers < 0 || s.TotalTransactions < 0 {
		return fmt.Errorf("negative summary totals")
	}
	for i, tx := range s.RecentTransactions {
		if err := tx.Validate(); err != nil {
			return fmt.Errorf("recent_transactions[%d]: %w", i, err)
		}
	}
	return nil
}

// MessageTypeCounts is the /message-type-counts response.
type MessageTypeCounts struct {
	Counts map[string]int `json:"counts"`
}

// CustomerPage is one page of the customer list.
type CustomerPage struct {
	Customers []Customer `json:"customers"`
	Total     int        `json:"total"`
}

// Validate checks every customer on the page.
func (p CustomerPage) Validate() error {
	if p.Total < 0 {
		return fmt.Errorf("negative customer total")
	}
	for i, c := range p.Customers {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("customers[%d]: %w", i, err)
		}
	}
	return nil
}

// CustomerSummary is the per-customer aggregate.
type CustomerSummary struct {
	Customer          Customer          `json:"customer"`
	MessageTypeStats  []MessageTypeStat `json:"message_type_stats"`
	TotalTransactions int               `json:"total_transactions"`
}

// Validate checks the embedded customer.
func (s CustomerSummary) Validate() error {
	return s.Customer.Validate()
}

// TransactionPage is one page of a customer's transactions.
type TransactionPage struct {
	Transactions []Transaction `json:"transactions"`
	Total        int           `json:"total"`
}

// Validate checks every transaction on the page.
func (p TransactionPage) Validate() error {
	if p.Total < 0 {
		return fmt.Errorf("negative transaction total")
	}
	for i, tx := range p.Transactions {
		if err := tx.Validate(); err != nil {
			return fmt.Errorf("transactions[%d]: %w", i, err)
		}
	}
	return nil
}

// UploadStatus is the backend's verdict on an upload or process request.
type UploadStatus string

const (
	UploadAccepted UploadStatus = "accepted"
	UploadSuccess  UploadStatus = "success"
	UploadError    UploadStatus = "error"
)

// StartsJob reports whether the response means a processing job is running.
func (s UploadStatus) StartsJob() bool {
	return s == UploadAccepted || s == UploadSuccess
}

// UploadResult is the response to an upload or process request.
type UploadResult struct {
	Status           UploadStatus `json:"status"`
	Message          string       `json:"message"`
	RecordsProcessed int          `json:"records_processed,omitempty"`
	RecordsFailed    int          `json:"records_failed,omitempty"`
}

// Validate checks the status enum.
func (u UploadResult) Validate() error {
	switch u.Status {
	case UploadAccepted, UploadSuccess, UploadError:
		return nil
	}
	return fmt.Errorf("unknown upload status %q", u.Status)
}

// Notification is the single display-level message slot shared by all
// operations: the latest upload verdict or the latest failure.
type Notification struct {
	Status  string    `json:"status"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Notification statuses besides the upload verdicts.
const (
	NotifyError   = "error"
	NotifySuccess = "success"
)
