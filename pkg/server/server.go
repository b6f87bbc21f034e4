// Package server exposes the screening flow over HTTP for kiosk
// frontends: question set, QR resolution, submission, report decoding,
// and the staff summary.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/knhealth/knscreen/pkg/crm"
	"github.com/knhealth/knscreen/pkg/flow"
	"github.com/knhealth/knscreen/pkg/qrconfig"
	"github.com/knhealth/knscreen/pkg/report"
	"github.com/knhealth/knscreen/pkg/risk"
	"github.com/knhealth/knscreen/pkg/session"
	"github.com/knhealth/knscreen/pkg/store"
)

// Server wires the HTTP API over the core packages.
type Server struct {
	questions []flow.Question
	registry  *qrconfig.Registry
	store     *store.Store
	crm       *crm.Client
	log       *zap.Logger

	now func() time.Time
	rng *rand.Rand
}

// New builds a server. store and crm may be nil in read-only deployments;
// submission then classifies without persisting and responds with a
// warning.
func New(questions []flow.Question, registry *qrconfig.Registry, st *store.Store, crmClient *crm.Client, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		questions: questions,
		registry:  registry,
		store:     st,
		crm:       crmClient,
		log:       logger,
		now:       time.Now,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Routes returns the API mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/questions", s.handleQuestions)
	mux.HandleFunc("/api/qr", s.handleQR)
	mux.HandleFunc("/api/submit", s.handleSubmit)
	mux.HandleFunc("/api/report", s.handleReport)
	mux.HandleFunc("/api/summary", s.handleSummary)
	return mux
}

// Start blocks serving the API on the given port.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.log.Info("starting screening API", zap.String("addr", addr))
	return http.ListenAndServe(addr, s.Routes())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleQuestions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	lang := flow.Language(r.URL.Query().Get("lang"))
	if lang == "" {
		lang = flow.LanguageEnglish
	}

	type optionResponse struct {
		Value string `json:"value"`
		Label string `json:"label"`
	}
	type questionResponse struct {
		ID             string           `json:"id"`
		Label          string           `json:"label"`
		Derived        bool             `json:"derived,omitempty"`
		DependsOn      string           `json:"depends_on,omitempty"`
		RequiredValues []string         `json:"required_values,omitempty"`
		Options        []optionResponse `json:"options"`
	}

	res := make([]questionResponse, 0, len(s.questions))
	for _, q := range s.questions {
		qr := questionResponse{
			ID:             q.ID,
			Label:          q.Label.Text(lang),
			Derived:        q.Derived,
			DependsOn:      q.DependsOn,
			RequiredValues: q.RequiredValues,
		}
		for _, o := range q.Options {
			qr.Options = append(qr.Options, optionResponse{Value: o.Value, Label: o.Label.Text(lang)})
		}
		res = append(res, qr)
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "code is required", http.StatusBadRequest)
		return
	}
	loc, err := s.registry.Resolve(code)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"qr_no":         loc.QRNo,
		"name":          loc.Name,
		"location_code": loc.LocationCode,
		"unit":          loc.Unit,
		"language":      string(loc.Language),
	})
}

type submitRequest struct {
	QRNo string `json:"qrNo"`
	User struct {
		Name     string `json:"name"`
		Phone    string `json:"phone"`
		Age      int    `json:"age"`
		Language string `json:"language"`
	} `json:"user"`
	Answers map[string]string `json:"answers"`
	Mode    string            `json:"mode"`
}

type submitResponse struct {
	Zone    string `json:"zone"`
	Code    string `json:"code"`
	Token   string `json:"token"`
	Warning string `json:"warning,omitempty"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	loc, err := s.registry.Resolve(req.QRNo)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.User.Name == "" {
		http.Error(w, "user name is required", http.StatusBadRequest)
		return
	}
	if req.User.Age < 1 || req.User.Age > 119 {
		http.Error(w, fmt.Sprintf("age %d out of range", req.User.Age), http.StatusBadRequest)
		return
	}

	answers, err := s.normalizeAnswers(req.Answers, req.User.Age)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	lang := flow.Language(req.User.Language)
	if lang == "" {
		lang = loc.Language
	}
	mode := session.Mode(req.Mode)
	if mode == "" {
		mode = session.ModeSelf
	}

	result := risk.NewAssessment(answers, s.now(), s.rng)
	token, err := report.Encode(report.New(result, answers, lang, s.questions))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	resp := submitResponse{Zone: result.Zone.String(), Code: result.PriorityCode, Token: token}
	if warn := s.runSinks(req, loc, answers, result, lang, mode); warn != "" {
		resp.Warning = warn
	}
	writeJSON(w, http.StatusOK, resp)
}

// normalizeAnswers validates submitted answers against the question set,
// injects the derived age-group slot, and prunes values for questions the
// final answers hide.
func (s *Server) normalizeAnswers(raw map[string]string, age int) (flow.AnswerSet, error) {
	answers := flow.AnswerSet{flow.QuestionAgeGroup: risk.AgeGroup(age)}
	for id, value := range raw {
		idx := flow.IndexOf(s.questions, id)
		if idx < 0 {
			return nil, fmt.Errorf("unknown question %q", id)
		}
		q := s.questions[idx]
		if q.Derived {
			continue // slot 0 is server-derived, never client-supplied
		}
		if !q.HasOption(value) {
			return nil, fmt.Errorf("question %s: %q is not an option", id, value)
		}
		answers[id] = value
	}
	flow.PruneHidden(s.questions, answers)
	return answers, nil
}

// runSinks persists the submission and forwards the lead. Sink failures
// surface as a warning string only; the computed result stands either way.
func (s *Server) runSinks(req submitRequest, loc qrconfig.Location, answers flow.AnswerSet, result risk.Assessment, lang flow.Language, mode session.Mode) string {
	if s.store == nil {
		return "submission not persisted (no store configured)"
	}

	user := store.User{
		Name:     req.User.Name,
		Phone:    req.User.Phone,
		Age:      req.User.Age,
		Language: string(lang),
	}
	if err := s.store.SaveUser(&user); err != nil {
		s.log.Warn("persist user failed", zap.Error(err))
		return "submission could not be saved"
	}
	assessment := store.Assessment{
		UserID:       user.ID,
		QRNo:         loc.QRNo,
		LocationCode: loc.LocationCode,
		Unit:         loc.Unit,
		Zone:         result.Zone.String(),
		PriorityCode: result.PriorityCode,
		Mode:         string(mode),
		Language:     string(lang),
		Answers:      answers,
		CreatedAt:    result.CreatedAt,
	}
	if err := s.store.SaveAssessment(&assessment); err != nil {
		s.log.Warn("persist assessment failed", zap.Error(err))
		return "submission could not be saved"
	}

	if s.crm != nil && answers[flow.QuestionFollowUpCall] == "Yes" {
		lead := session.Lead{
			Name:         req.User.Name,
			Phone:        req.User.Phone,
			Zone:         result.Zone,
			PriorityCode: result.PriorityCode,
			LocationCode: loc.LocationCode,
			Source:       "knscreen-api",
		}
		// Lead forwarding resolves in the background; its outcome never
		// reaches this response.
		go func() {
			if err := s.crm.Forward(lead); err != nil {
				s.log.Warn("lead forward failed", zap.Error(err))
			}
		}()
	}
	return ""
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "token is required", http.StatusBadRequest)
		return
	}
	rep, err := report.Decode(token)
	if err != nil {
		if errors.Is(err, report.ErrMalformedToken) {
			http.Error(w, "report unavailable or corrupt", http.StatusUnprocessableEntity)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	answers := rep.AnswerSet(s.questions)
	lang := rep.Language
	type answerLine struct {
		Question string `json:"question"`
		Answer   string `json:"answer"`
	}
	var lines []answerLine
	for _, q := range s.questions {
		v, ok := answers[q.ID]
		if !ok {
			continue
		}
		label := v
		for _, o := range q.Options {
			if o.Value == v {
				label = o.Label.Text(lang)
				break
			}
		}
		lines = append(lines, answerLine{Question: q.Label.Text(lang), Answer: label})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"code":      rep.Code,
		"zone":      rep.Zone.String(),
		"language":  string(lang),
		"issued_at": rep.Time().Format(time.RFC3339),
		"answers":   lines,
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		http.Error(w, "no store configured", http.StatusServiceUnavailable)
		return
	}
	since := s.now().AddDate(0, 0, -1)
	if v := r.URL.Query().Get("since"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid since: %v", err), http.StatusBadRequest)
			return
		}
		since = parsed
	}
	counts, err := s.store.ZoneCounts(since)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}
