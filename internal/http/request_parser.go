package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"fisse/internal/core"
)

const maxBodyBytes = 64 << 10

type templateRequest struct {
	DisplayName   string          `json:"displayName"`
	DefaultAmount decimal.Decimal `json:"defaultAmount"`
	Category      string          `json:"category"`
	Active        *bool           `json:"active"`
	Cadence       core.Cadence    `json:"cadence"`
	AnchorDay     int             `json:"anchorDay"`
}

func (req templateRequest) toTemplate(side core.Side, id string) core.Template {
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	cadence := req.Cadence
	if cadence == "" {
		cadence = core.Monthly
	}
	return core.Template{
		ID:            id,
		Side:          side,
		DisplayName:   sanitizeInput(req.DisplayName),
		DefaultAmount: req.DefaultAmount,
		Category:      sanitizeInput(req.Category),
		Active:        active,
		Cadence:       cadence,
		AnchorDay:     req.AnchorDay,
	}
}

type payRequest struct {
	Amount *decimal.Decimal `json:"amount"`
}

type amountRequest struct {
	Amount           *decimal.Decimal `json:"amount"`
	PersistAsDefault bool             `json:"persistAsDefault"`
}

type receivedRequest struct {
	Received bool `json:"received"`
}

type extraRequest struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Date        string          `json:"date"`
}

func (req extraRequest) toEntry(id string) (core.ExtraEntry, error) {
	e := core.ExtraEntry{
		ID:          id,
		Description: sanitizeInput(req.Description),
		Amount:      req.Amount,
	}
	if d := strings.TrimSpace(req.Date); d != "" {
		t, err := parseDate(d)
		if err != nil {
			return core.ExtraEntry{}, fmt.Errorf("%w: date %q", errBadRequest, d)
		}
		e.Date = t
	}
	return e, nil
}

var errBadRequest = errors.New("bad request")

// decodeJSON reads a bounded JSON body into dst. An empty body leaves dst
// untouched, so endpoints with optional bodies accept bare POSTs.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func sideParam(r *http.Request) (core.Side, error) {
	side := core.Side(strings.ToLower(chi.URLParam(r, "side")))
	if err := side.Validate(); err != nil {
		return "", err
	}
	return side, nil
}

func periodParam(r *http.Request) (core.PeriodKey, error) {
	return core.ParsePeriod(chi.URLParam(r, "period"))
}

// parseDate accepts a plain date or a full RFC 3339 timestamp.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
