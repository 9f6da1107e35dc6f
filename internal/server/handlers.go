package server

import (
	"fmt"
	"net/http"
	"strconv"

	"vowpact/internal/auth"
	"vowpact/internal/contract"
	"vowpact/internal/logging"
	"vowpact/internal/service"
	"vowpact/internal/store"

	"github.com/go-chi/chi/v5"
)

// user returns the logged-in user. Routes using it sit behind RequireUser.
func user(r *http.Request) *store.User {
	u, _ := auth.UserFromContext(r.Context())
	return u
}

// -----------------------------------------------------------------------------
// Auth
// -----------------------------------------------------------------------------

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var reg auth.Registration
	if err := decode(r, &reg, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	password := reg.Password
	u, err := s.auth.Register(r.Context(), reg)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, _, err := s.auth.Login(r.Context(), u.Email, password, auth.MetaFromRequest(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.cookie.SetCookie(w, sess)
	writeJSON(w, http.StatusCreated, newUserView(u))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, u, err := s.auth.Login(r.Context(), req.Email, req.Password, auth.MetaFromRequest(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.cookie.SetCookie(w, sess)
	writeJSON(w, http.StatusOK, newUserView(u))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Logout(r.Context(), s.cookie.Token(r)); err != nil {
		logging.AuthWarn("logout: %v", err)
	}
	s.cookie.ClearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newUserView(user(r)))
}

// -----------------------------------------------------------------------------
// Contracts
// -----------------------------------------------------------------------------

type updateRequest struct {
	Version int `json:"version"`
	contract.Draft
}

type previewRequest struct {
	contract.Draft
	Tone         string `json:"tone"`
	Instructions string `json:"instructions"`
}

func (s *Server) handleListContracts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := service.ListOptions{Status: contract.Status(q.Get("status"))}
	if v := q.Get("include_deleted"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: include_deleted must be a boolean", errBadRequest))
			return
		}
		opts.IncludeDeleted = b
	}
	list, err := s.contracts.List(r.Context(), user(r), opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	views := make([]contractView, 0, len(list))
	for _, c := range list {
		views = append(views, s.view(c))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"contracts": views})
}

func (s *Server) handleCreateContract(w http.ResponseWriter, r *http.Request) {
	var d contract.Draft
	if err := decode(r, &d, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := s.contracts.Create(r.Context(), user(r), d)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/contracts/"+c.ID)
	writeJSON(w, http.StatusCreated, s.view(c))
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := decode(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.contracts.Preview(r.Context(), user(r), req.Draft, service.GenerateOptions{
		Tone:         req.Tone,
		Instructions: req.Instructions,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetContract(w http.ResponseWriter, r *http.Request) {
	c, err := s.contracts.Get(r.Context(), user(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.view(c))
}

func (s *Server) handleUpdateContract(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := decode(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Version == 0 {
		if v, err := strconv.Atoi(r.Header.Get("If-Match")); err == nil {
			req.Version = v
		}
	}
	c, err := s.contracts.Update(r.Context(), user(r), chi.URLParam(r, "id"), req.Version, req.Draft)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.view(c))
}

func (s *Server) handleDeleteContract(w http.ResponseWriter, r *http.Request) {
	c, err := s.contracts.Delete(r.Context(), user(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.view(c))
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var opts service.GenerateOptions
	if err := decode(r, &opts, true); err != nil {
		s.writeError(w, r, err)
		return
	}
	c, res, err := s.contracts.Generate(r.Context(), user(r), chi.URLParam(r, "id"), opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"contract":    s.view(c),
		"sections":    res.Sections,
		"duration_ms": res.Duration.Milliseconds(),
	})
}

func (s *Server) handleSign(w http.ResponseWriter, r *http.Request) {
	in, err := signInput(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := s.contracts.Sign(r.Context(), user(r), chi.URLParam(r, "id"), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.view(c))
}

func (s *Server) handleDuplicate(w http.ResponseWriter, r *http.Request) {
	c, err := s.contracts.Duplicate(r.Context(), user(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/contracts/"+c.ID)
	writeJSON(w, http.StatusCreated, s.view(c))
}

func (s *Server) handleExportPDF(w http.ResponseWriter, r *http.Request) {
	data, c, err := s.contracts.ExportPDF(r.Context(), user(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writePDF(w, c, data)
}

func (s *Server) handleExportHTML(w http.ResponseWriter, r *http.Request) {
	doc, _, err := s.contracts.ExportHTML(r.Context(), user(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(doc))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	events, err := s.contracts.History(r.Context(), user(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if events == nil {
		events = []logging.AuditEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

// -----------------------------------------------------------------------------
// Share links
// -----------------------------------------------------------------------------

func (s *Server) handleShareView(w http.ResponseWriter, r *http.Request) {
	c, err := s.contracts.GetByToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, publicView(c))
}

func (s *Server) handleSharePDF(w http.ResponseWriter, r *http.Request) {
	data, c, err := s.contracts.ExportPDFByToken(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writePDF(w, c, data)
}

func (s *Server) handleShareSign(w http.ResponseWriter, r *http.Request) {
	in, err := signInput(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := s.contracts.SignByToken(r.Context(), chi.URLParam(r, "token"), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, publicView(c))
}

func signInput(r *http.Request) (service.SignInput, error) {
	var in service.SignInput
	if err := decode(r, &in, false); err != nil {
		return in, err
	}
	in.IPAddress = auth.ClientIP(r)
	in.UserAgent = r.UserAgent()
	return in, nil
}

func writePDF(w http.ResponseWriter, c *contract.Contract, data []byte) {
	name := c.ID
	if len(name) > 8 {
		name = name[:8]
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="contract-%s.pdf"`, name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
