// Package session owns the current search: its query, pagination and sort
// state, the visible page of results, and the orchestration that executes
// searches against the upstream provider under a credit budget.
package session

import (
	"fmt"
	"strings"
	"time"
)

// SearchType selects how a query is interpreted by the upstream provider.
type SearchType string

const (
	SearchByName    SearchType = "name"
	SearchByEmail   SearchType = "email"
	SearchByPhone   SearchType = "phone"
	SearchByAddress SearchType = "address"
)

// IsValid checks if the search type is one of the supported enum values.
func (t SearchType) IsValid() bool {
	switch t {
	case SearchByName, SearchByEmail, SearchByPhone, SearchByAddress:
		return true
	}
	return false
}

func (t SearchType) String() string {
	return string(t)
}

// Sort maps a single upstream field name to "asc" or "desc".
type Sort map[string]string

// DefaultSort is the sort applied to every new search.
func DefaultSort() Sort {
	return Sort{"first_name": "asc"}
}

// NewSort builds a single-field sort.
func NewSort(field, direction string) Sort {
	return Sort{field: direction}
}

// ValidDirection reports whether a sort direction is supported.
func ValidDirection(direction string) bool {
	return direction == "asc" || direction == "desc"
}

// AllowedLimits is the user-selectable page-size set.
var AllowedLimits = []int{5, 10, 25, 50}

// DefaultLimit is the page size applied to every new search.
const DefaultLimit = 5

// ValidLimit reports whether a page size is one of the allowed values.
func ValidLimit(n int) bool {
	for _, l := range AllowedLimits {
		if n == l {
			return true
		}
	}
	return false
}

// Address is a structured search term for address lookups. Street is the only
// component required to execute a search.
type Address struct {
	Street      string `json:"street,omitempty"`
	City        string `json:"city,omitempty"`
	Region      string `json:"region,omitempty"`
	Postcode    string `json:"postcode,omitempty"`
	FullAddress string `json:"full_address,omitempty"`
}

// FreeText joins the present components into the upstream free-text query.
func (a Address) FreeText() string {
	parts := make([]string, 0, 4)
	for _, p := range []string{a.Street, a.City, a.Region, a.Postcode} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// Keyword is the display form of the address used in history entries.
func (a Address) Keyword() string {
	if a.FullAddress != "" {
		return a.FullAddress
	}
	return a.FreeText()
}

// Query is the search term: free text for name/email/phone searches, a
// structured address for address searches. Exactly one side is set.
type Query struct {
	Text    string   `json:"text,omitempty"`
	Address *Address `json:"address,omitempty"`
}

// TextQuery wraps a free-text search term.
func TextQuery(text string) Query {
	return Query{Text: text}
}

// AddressQuery wraps a structured address search term.
func AddressQuery(address Address) Query {
	return Query{Address: &address}
}

// IsZero reports whether no search term has been set.
func (q Query) IsZero() bool {
	return q.Text == "" && q.Address == nil
}

// Keyword is the display/history form of the query.
func (q Query) Keyword() string {
	if q.Address != nil {
		return q.Address.Keyword()
	}
	return q.Text
}

// CellPhone is one phone number attached to a person record.
type CellPhone struct {
	Phone  string `json:"phone"`
	Active bool   `json:"active,omitempty"`
}

// EmailAddress is one email attached to a person record.
type EmailAddress struct {
	Address string `json:"address"`
}

// Person is a normalized upstream person record. LocalID is a session-local
// synthetic id assigned per render; it is never stable across searches and is
// used only to navigate to a detail view.
type Person struct {
	LocalID    string         `json:"id,omitempty"`
	FirstName  string         `json:"first_name,omitempty"`
	LastName   string         `json:"last_name,omitempty"`
	Age        int            `json:"age,omitempty"`
	Street     string         `json:"street,omitempty"`
	City       string         `json:"city,omitempty"`
	State      string         `json:"state,omitempty"`
	PostalCode string         `json:"postal_code,omitempty"`
	CellPhones []CellPhone    `json:"cell_phones,omitempty"`
	Emails     []EmailAddress `json:"emails,omitempty"`
}

// Result is one fetched page of upstream matches. Count is the total match
// count for the query, not the page length.
type Result struct {
	Count     int      `json:"count"`
	Documents []Person `json:"documents"`
}

// ResultType classifies a fetch outcome for history entries.
type ResultType string

const (
	ResultEmpty  ResultType = "empty"
	ResultSingle ResultType = "single"
	ResultSet    ResultType = "set"
)

// Classify derives the result type from the reported match count.
func Classify(count int) ResultType {
	switch {
	case count == 0:
		return ResultEmpty
	case count == 1:
		return ResultSingle
	default:
		return ResultSet
	}
}

// SearchRequest is one upstream fetch: the typed term plus page window.
type SearchRequest struct {
	Type    SearchType
	Query   Query
	Filters *Filter
	Limit   int
	Offset  int
	Sort    Sort
}

// Record is the durable trace of one executed, loggable fetch. It is created
// once per fetch, never mutated, and can later re-seed a session without a
// new upstream call.
type Record struct {
	Date        time.Time  `json:"date"`
	Keyword     string     `json:"keyword"`
	Type        SearchType `json:"type"`
	ResultType  ResultType `json:"resultType"`
	Response    Result     `json:"response"`
	Sort        Sort       `json:"sort,omitempty"`
	Offset      int        `json:"offset"`
	Page        int        `json:"page"`
	Count       int        `json:"count"`
	Filters     *Filter    `json:"filters,omitempty"`
	CreditsUsed int        `json:"credits_used"`
}

// CreditReport is the ledger's answer to "can I spend N credits now".
type CreditReport struct {
	Available        bool `json:"available"`
	AvailableCredits int  `json:"availableCredits"`
	TotalUsed        int  `json:"totalUsed"`
	Limit            int  `json:"limit"`
}

// tagPersons assigns fresh session-local ids. Ids are unique per render and
// deliberately not stable across searches.
func tagPersons(persons []Person) []Person {
	now := time.Now().UnixMilli()
	tagged := make([]Person, len(persons))
	for i, p := range persons {
		p.LocalID = fmt.Sprintf("person_%d_%d", now, i)
		tagged[i] = p
	}
	return tagged
}
