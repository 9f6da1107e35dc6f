package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"vowpact/internal/auth"
	"vowpact/internal/contract"
	"vowpact/internal/generate"
	"vowpact/internal/logging"
	"vowpact/internal/service"
	"vowpact/internal/store"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// errBadRequest marks malformed request bodies and parameters.
var errBadRequest = errors.New("bad request")

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.HTTPError("encode response: %v", err)
	}
}

// decode reads a JSON body into v. An empty body leaves v untouched when
// optional is set.
func decode(r *http.Request, v interface{}, optional bool) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: body larger than %d bytes", errBadRequest, tooLarge.Limit)
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrSignatureRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, contract.ErrNotEditable),
		errors.Is(err, contract.ErrAlreadySigned),
		errors.Is(err, contract.ErrDeleted),
		errors.Is(err, contract.ErrInvalidTransition),
		errors.Is(err, contract.ErrVersionConflict),
		errors.Is(err, auth.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, contract.ErrInvalid),
		errors.Is(err, contract.ErrUnknownStatus),
		errors.Is(err, generate.ErrInvalidRequest),
		errors.Is(err, auth.ErrInvalidInput),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrNoSession),
		errors.Is(err, auth.ErrSessionExpired):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// writeError maps err to a status and writes the JSON error body. Server
// errors are logged and replaced with a generic message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	switch {
	case status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable && status != http.StatusGatewayTimeout:
		s.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		msg = "internal error"
	case status == http.StatusGatewayTimeout:
		msg = "timed out"
	}
	writeJSON(w, status, errorBody{Error: msg})
}

// contractView is a contract plus the link the client signs through.
type contractView struct {
	*contract.Contract
	ShareURL   string `json:"share_url"`
	TotalCents int64  `json:"total_cents"`
}

func (s *Server) view(c *contract.Contract) contractView {
	return contractView{Contract: c, ShareURL: s.contracts.ShareURL(c), TotalCents: c.TotalCents()}
}

// sharedView is what a client sees through a share link. Owner details,
// private notes and signing evidence stay with the vendor.
type sharedView struct {
	ID           string              `json:"id"`
	Title        string              `json:"title"`
	VendorType   contract.VendorType `json:"vendor_type"`
	Vendor       contract.Party      `json:"vendor"`
	Client       contract.Party      `json:"client"`
	Event        contract.Event      `json:"event"`
	Items        []contract.LineItem `json:"items,omitempty"`
	DepositCents int64               `json:"deposit_cents"`
	TotalCents   int64               `json:"total_cents"`
	Currency     string              `json:"currency"`
	Body         string              `json:"body"`
	Status       contract.Status     `json:"status"`
	Version      int                 `json:"version"`
	Signature    *sharedSignature    `json:"signature,omitempty"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

type sharedSignature struct {
	SignerName   string    `json:"signer_name"`
	ImageDataURL string    `json:"image_data_url"`
	SignedAt     time.Time `json:"signed_at"`
	ContentHash  string    `json:"content_hash"`
}

func publicView(c *contract.Contract) sharedView {
	v := sharedView{
		ID:           c.ID,
		Title:        c.Title,
		VendorType:   c.VendorType,
		Vendor:       c.Vendor,
		Client:       c.Client,
		Event:        c.Event,
		Items:        c.Items,
		DepositCents: c.DepositCents,
		TotalCents:   c.TotalCents(),
		Currency:     c.Currency,
		Body:         c.Body,
		Status:       c.Status,
		Version:      c.Version,
		UpdatedAt:    c.UpdatedAt,
	}
	if sig := c.Signature; sig != nil {
		v.Signature = &sharedSignature{
			SignerName:   sig.SignerName,
			ImageDataURL: sig.ImageDataURL,
			SignedAt:     sig.SignedAt,
			ContentHash:  sig.ContentHash,
		}
	}
	return v
}

// userView is the account shape returned to the browser.
type userView struct {
	ID           string              `json:"id"`
	Email        string              `json:"email"`
	Name         string              `json:"name"`
	BusinessName string              `json:"business_name"`
	VendorType   contract.VendorType `json:"vendor_type"`
	Phone        string              `json:"phone,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
}

func newUserView(u *store.User) userView {
	return userView{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		BusinessName: u.BusinessName,
		VendorType:   u.VendorType,
		Phone:        u.Phone,
		CreatedAt:    u.CreatedAt,
	}
}
