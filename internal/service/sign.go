package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"vowpact/internal/contract"
	"vowpact/internal/logging"
	"vowpact/internal/render"
	"vowpact/internal/signature"
	"vowpact/internal/store"
)

// clientActor marks audit events performed through a share link.
const clientActor = "client"

// signaturePadding is kept around the drawn strokes when trimming.
const signaturePadding = 8

// SignInput is what the signing form submits.
type SignInput struct {
	SignerName   string `json:"signer_name"`
	SignerEmail  string `json:"signer_email,omitempty"`
	SignatureURL string `json:"signature"` // data:image/png;base64,...
	Version      int    `json:"version,omitempty"`

	// Filled from the request, never from the body.
	IPAddress string `json:"-"`
	UserAgent string `json:"-"`
}

func (in *SignInput) validate() error {
	in.SignerName = strings.TrimSpace(in.SignerName)
	in.SignerEmail = strings.TrimSpace(in.SignerEmail)
	if in.SignerName == "" {
		return fmt.Errorf("%w: signer name is required", contract.ErrInvalid)
	}
	if utf8.RuneCountInString(in.SignerName) > contract.MaxTitleLen {
		return fmt.Errorf("%w: signer name too long", contract.ErrInvalid)
	}
	if in.SignerEmail != "" {
		if _, err := mail.ParseAddress(in.SignerEmail); err != nil {
			return fmt.Errorf("%w: signer email: %v", contract.ErrInvalid, err)
		}
	}
	return nil
}

// cleanSignature validates the drawn image and returns it cropped to the ink.
func (s *Service) cleanSignature(dataURL string) (string, error) {
	img, err := signature.Parse(dataURL, s.limits)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSignatureRejected, err)
	}
	out, err := img.Trim(signaturePadding).DataURL()
	if err != nil {
		return "", fmt.Errorf("%w: encode: %w", ErrSignatureRejected, err)
	}
	return out, nil
}

// Sign records a signature captured in the vendor's session, for example
// when the client signs on the vendor's tablet.
func (s *Service) Sign(ctx context.Context, user *store.User, id string, in SignInput) (*contract.Contract, error) {
	current, err := s.owned(ctx, user, id)
	if err != nil {
		return nil, err
	}
	return s.sign(ctx, current, actorID(user), in, func(fn store.UpdateFunc) (*contract.Contract, error) {
		return s.update(ctx, user, id, fn)
	})
}

// SignByToken records the client's signature through a share link.
func (s *Service) SignByToken(ctx context.Context, token string, in SignInput) (*contract.Contract, error) {
	current, err := s.byToken(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.sign(ctx, current, clientActor, in, func(fn store.UpdateFunc) (*contract.Contract, error) {
		return s.store.UpdateContract(ctx, current.ID, func(c *contract.Contract) error {
			if c.ShareToken != token {
				return fmt.Errorf("share link: %w", ErrNotFound)
			}
			return fn(c)
		})
	})
}

func (s *Service) sign(ctx context.Context, current *contract.Contract, actor string, in SignInput,
	commit func(store.UpdateFunc) (*contract.Contract, error)) (*contract.Contract, error) {
	reject := func(err error) (*contract.Contract, error) {
		s.audit.Rejected(logging.AuditSignatureRejected, actor, current.ID, err)
		logging.SignatureWarn("signature for %s rejected: %v", current.ID, err)
		return nil, err
	}

	// State problems are reported before looking at the image.
	if err := current.CanSign(); err != nil {
		return reject(err)
	}
	if err := current.CheckVersion(in.Version); err != nil {
		return reject(err)
	}
	if err := in.validate(); err != nil {
		return reject(err)
	}
	img, err := s.cleanSignature(in.SignatureURL)
	if err != nil {
		return reject(err)
	}

	c, err := commit(func(c *contract.Contract) error {
		if err := c.CheckVersion(in.Version); err != nil {
			return err
		}
		return c.Attach(contract.Signature{
			SignerName:   in.SignerName,
			SignerEmail:  in.SignerEmail,
			ImageDataURL: img,
			IPAddress:    in.IPAddress,
			UserAgent:    in.UserAgent,
		}, s.now())
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return reject(err)
	}
	s.record(logging.AuditContractSigned, actor, c)
	logging.Signature("%s signed by %q from %s, hash %s", c.ID, in.SignerName, in.IPAddress, c.Signature.ContentHash)
	return c, nil
}

// byToken resolves a share link. Deleted contracts are hidden.
func (s *Service) byToken(ctx context.Context, token string) (*contract.Contract, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("share link: %w", ErrNotFound)
	}
	c, err := s.store.GetContractByShareToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if c.Status == contract.StatusDeleted {
		return nil, fmt.Errorf("share link: %w", ErrNotFound)
	}
	return c, nil
}

// GetByToken returns the client's view of a shared contract.
func (s *Service) GetByToken(ctx context.Context, token string) (*contract.Contract, error) {
	c, err := s.byToken(ctx, token)
	if err != nil {
		return nil, err
	}
	s.record(logging.AuditContractViewed, clientActor, c)
	return c, nil
}

// ExportHTML renders one of user's contracts as a printable document.
func (s *Service) ExportHTML(ctx context.Context, user *store.User, id string) (string, *contract.Contract, error) {
	c, err := s.owned(ctx, user, id)
	if err != nil {
		return "", nil, err
	}
	doc, err := s.document(c)
	if err != nil {
		return "", nil, err
	}
	return doc, c, nil
}

// ExportPDF renders one of user's contracts to PDF.
func (s *Service) ExportPDF(ctx context.Context, user *store.User, id string) ([]byte, *contract.Contract, error) {
	c, err := s.owned(ctx, user, id)
	if err != nil {
		return nil, nil, err
	}
	return s.exportPDF(ctx, c, actorID(user))
}

// ExportPDFByToken renders a shared contract to PDF for the client.
func (s *Service) ExportPDFByToken(ctx context.Context, token string) ([]byte, *contract.Contract, error) {
	c, err := s.byToken(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	return s.exportPDF(ctx, c, clientActor)
}

func (s *Service) exportPDF(ctx context.Context, c *contract.Contract, actor string) ([]byte, *contract.Contract, error) {
	if s.pdf == nil {
		return nil, nil, fmt.Errorf("pdf export: %w", ErrUnavailable)
	}
	doc, err := s.document(c)
	if err != nil {
		return nil, nil, err
	}
	data, err := s.pdf.RenderPDF(ctx, doc)
	if err != nil {
		logging.RenderError("pdf for %s: %v", c.ID, err)
		return nil, nil, fmt.Errorf("render pdf: %w", err)
	}
	s.record(logging.AuditContractExported, actor, c)
	return data, c, nil
}

func (s *Service) document(c *contract.Contract) (string, error) {
	doc, err := render.HTML(c, render.Options{Paper: s.paper, ShareURL: s.ShareURL(c)})
	if err != nil {
		return "", fmt.Errorf("render document: %w", err)
	}
	return doc, nil
}
