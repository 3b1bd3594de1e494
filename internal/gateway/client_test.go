package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/suite"

	"peoplefinder/internal/session"
	dErrors "peoplefinder/pkg/domain-errors"
)

// =============================================================================
// Upstream Query Gateway Test Suite
// =============================================================================
// Justification for unit tests: the gateway owns the per-type predicate
// mapping and the contact augmentation rules, which are pure wire-shape
// concerns best verified against a recording test server.

type GatewaySuite struct {
	suite.Suite
	ctx      context.Context
	server   *httptest.Server
	client   *Client
	received struct {
		body    map[string]any
		headers http.Header
	}
	respond func(w http.ResponseWriter)
}

func TestGatewaySuite(t *testing.T) {
	suite.Run(t, new(GatewaySuite))
}

func (s *GatewaySuite) SetupTest() {
	s.ctx = context.Background()
	s.respond = func(w http.ResponseWriter) {
		_ = json.NewEncoder(w).Encode(session.Result{Count: 0, Documents: []session.Person{}})
	}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.received.headers = r.Header.Clone()
		s.received.body = map[string]any{}
		_ = json.NewDecoder(r.Body).Decode(&s.received.body)
		s.respond(w)
	}))

	var err error
	s.client, err = New(s.server.URL, "test-token")
	s.Require().NoError(err)
}

func (s *GatewaySuite) TearDownTest() {
	s.server.Close()
}

func (s *GatewaySuite) respondWith(res session.Result) {
	s.respond = func(w http.ResponseWriter) {
		_ = json.NewEncoder(w).Encode(res)
	}
}

func (s *GatewaySuite) filter() map[string]any {
	f, _ := s.received.body["filter"].(map[string]any)
	return f
}

// =============================================================================
// Constructor Tests
// =============================================================================

func (s *GatewaySuite) TestNew() {
	s.Run("empty base URL returns error", func() {
		_, err := New("", "token")
		s.Error(err)
	})

	s.Run("embedded field projection flattens to leaf names", func() {
		s.Contains(s.client.fields, "first_name")
		s.Contains(s.client.fields, "cell_phones")
		s.Contains(s.client.fields, "adults")
		s.NotContains(s.client.fields, "identity")
		s.NotContains(s.client.fields, "family")
	})
}

// =============================================================================
// Validate Tests
// =============================================================================

func (s *GatewaySuite) TestValidate() {
	s.Run("address without street is rejected", func() {
		err := s.client.Validate(session.SearchRequest{
			Type:  session.SearchByAddress,
			Query: session.AddressQuery(session.Address{City: "Boston", Region: "MA"}),
		})
		s.Require().Error(err)
		s.True(dErrors.Is(err, dErrors.CodeInvalidInput))

		var addrErr *InvalidAddressError
		s.Require().True(errors.As(err, &addrErr))
		s.Equal("street", addrErr.Missing)
	})

	s.Run("address with street passes", func() {
		err := s.client.Validate(session.SearchRequest{
			Type:  session.SearchByAddress,
			Query: session.AddressQuery(session.Address{Street: "12 Main St"}),
		})
		s.NoError(err)
	})

	s.Run("text search requires a query", func() {
		err := s.client.Validate(session.SearchRequest{
			Type:  session.SearchByName,
			Query: session.TextQuery("   "),
		})
		s.True(dErrors.Is(err, dErrors.CodeInvalidInput))
	})

	s.Run("unknown type is rejected", func() {
		err := s.client.Validate(session.SearchRequest{
			Type:  session.SearchType("dna"),
			Query: session.TextQuery("x"),
		})
		s.True(dErrors.Is(err, dErrors.CodeInvalidInput))
	})
}

// =============================================================================
// Request Shape Tests
// =============================================================================

func (s *GatewaySuite) TestRequestShape() {
	s.Run("name search sends free text plus caller filters", func() {
		filters := session.Predicate("age", "greater_than", 30)
		_, err := s.client.Execute(s.ctx, session.SearchRequest{
			Type:    session.SearchByName,
			Query:   session.TextQuery("jane doe"),
			Filters: &filters,
			Limit:   10,
			Offset:  20,
			Sort:    session.Sort{"last_name": "desc"},
		})
		s.Require().NoError(err)

		s.Equal("jane doe", s.received.body["query"])
		s.Equal(float64(10), s.received.body["limit"])
		s.Equal(float64(20), s.received.body["offset"])
		s.Equal("age", s.filter()["attribute"])
		s.NotEmpty(s.received.body["fields"])
		s.ElementsMatch(
			[]any{"people_enhanced_v6", "cell_phones_v2", "emails_v2"},
			s.received.body["packages"],
		)
		s.Equal("test-token", s.received.headers.Get("X-AUTH-TOKEN"))
	})

	s.Run("email search sends an address predicate", func() {
		_, err := s.client.Execute(s.ctx, session.SearchRequest{
			Type:  session.SearchByEmail,
			Query: session.TextQuery("a@b.com"),
			Limit: 5,
		})
		s.Require().NoError(err)

		s.Equal("emails.address", s.filter()["attribute"])
		s.Equal("matches", s.filter()["relation"])
		s.Equal("a@b.com", s.filter()["value"])
		s.Nil(s.received.body["query"])
	})

	s.Run("phone search sends a phone predicate", func() {
		_, err := s.client.Execute(s.ctx, session.SearchRequest{
			Type:  session.SearchByPhone,
			Query: session.TextQuery("6175551234"),
			Limit: 5,
		})
		s.Require().NoError(err)

		s.Equal("cell_phones.phone", s.filter()["attribute"])
		s.Equal("6175551234", s.filter()["value"])
	})

	s.Run("address search lowercases the street predicate and sends free text", func() {
		_, err := s.client.Execute(s.ctx, session.SearchRequest{
			Type: session.SearchByAddress,
			Query: session.AddressQuery(session.Address{
				Street:   "12 Main St",
				City:     "Boston",
				Region:   "MA",
				Postcode: "02101",
			}),
			Limit: 5,
		})
		s.Require().NoError(err)

		s.Equal("street", s.filter()["attribute"])
		s.Equal("12 main st", s.filter()["value"])
		s.Equal("12 Main St Boston MA 02101", s.received.body["query"])
	})
}

// =============================================================================
// Augmentation Tests
// =============================================================================

func (s *GatewaySuite) TestAugmentation() {
	s.Run("phone search prepends the searched number", func() {
		s.respondWith(session.Result{Count: 1, Documents: []session.Person{
			{FirstName: "Jane", CellPhones: []session.CellPhone{{Phone: "9995550000"}}},
		}})

		res, err := s.client.Execute(s.ctx, session.SearchRequest{
			Type:  session.SearchByPhone,
			Query: session.TextQuery("6175551234"),
			Limit: 5,
		})
		s.Require().NoError(err)

		phones := res.Documents[0].CellPhones
		s.Require().Len(phones, 2)
		s.Equal("6175551234", phones[0].Phone)
		s.True(phones[0].Active)
	})

	s.Run("phone already present is not duplicated", func() {
		s.respondWith(session.Result{Count: 1, Documents: []session.Person{
			{CellPhones: []session.CellPhone{{Phone: "6175551234"}}},
		}})

		res, err := s.client.Execute(s.ctx, session.SearchRequest{
			Type:  session.SearchByPhone,
			Query: session.TextQuery("6175551234"),
			Limit: 5,
		})
		s.Require().NoError(err)
		s.Len(res.Documents[0].CellPhones, 1)
	})

	s.Run("email search prepends the searched address", func() {
		s.respondWith(session.Result{Count: 1, Documents: []session.Person{
			{Emails: []session.EmailAddress{{Address: "other@x.com"}}},
		}})

		res, err := s.client.Execute(s.ctx, session.SearchRequest{
			Type:  session.SearchByEmail,
			Query: session.TextQuery("a@b.com"),
			Limit: 5,
		})
		s.Require().NoError(err)

		emails := res.Documents[0].Emails
		s.Require().Len(emails, 2)
		s.Equal("a@b.com", emails[0].Address)
	})

	s.Run("name search results are untouched", func() {
		s.respondWith(session.Result{Count: 1, Documents: []session.Person{
			{FirstName: "Jane"},
		}})

		res, err := s.client.Execute(s.ctx, session.SearchRequest{
			Type:  session.SearchByName,
			Query: session.TextQuery("jane"),
			Limit: 5,
		})
		s.Require().NoError(err)
		s.Empty(res.Documents[0].CellPhones)
		s.Empty(res.Documents[0].Emails)
	})
}

// =============================================================================
// Error Mapping Tests
// =============================================================================

func (s *GatewaySuite) TestErrorMapping() {
	s.Run("401 maps to unauthorized", func() {
		s.respond = func(w http.ResponseWriter) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"bad token"}}`))
		}

		_, err := s.client.Execute(s.ctx, session.SearchRequest{
			Type:  session.SearchByName,
			Query: session.TextQuery("jane"),
			Limit: 5,
		})
		s.Require().Error(err)
		s.True(dErrors.Is(err, dErrors.CodeUnauthorized))
		s.Contains(err.Error(), "bad token")
	})

	s.Run("5xx maps to upstream failure with extracted message", func() {
		s.respond = func(w http.ResponseWriter) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"errors":[{"message":"index rebuilding"}]}`))
		}

		_, err := s.client.Execute(s.ctx, session.SearchRequest{
			Type:  session.SearchByName,
			Query: session.TextQuery("jane"),
			Limit: 5,
		})
		s.Require().Error(err)
		s.True(dErrors.Is(err, dErrors.CodeUpstreamFailed))
		s.Contains(err.Error(), "index rebuilding")
	})

	s.Run("unreachable provider maps to upstream failure", func() {
		client, err := New("http://127.0.0.1:1", "token")
		s.Require().NoError(err)

		_, err = client.Execute(s.ctx, session.SearchRequest{
			Type:  session.SearchByName,
			Query: session.TextQuery("jane"),
			Limit: 5,
		})
		s.True(dErrors.Is(err, dErrors.CodeUpstreamFailed))
	})

	s.Run("missing documents decode to an empty slice", func() {
		s.respond = func(w http.ResponseWriter) {
			_, _ = w.Write([]byte(`{"count":0}`))
		}

		res, err := s.client.Execute(s.ctx, session.SearchRequest{
			Type:  session.SearchByName,
			Query: session.TextQuery("jane"),
			Limit: 5,
		})
		s.Require().NoError(err)
		s.NotNil(res.Documents)
		s.Empty(res.Documents)
	})
}
