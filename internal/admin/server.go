package admin

import (
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"net/http"
	"strconv"

	"swarmctl/internal/dispatch"
	"swarmctl/internal/session"
	"swarmctl/internal/trajectory"
)

// Server exposes the operator command surface and mission status over HTTP.
type Server struct {
	Dispatcher *dispatch.Dispatcher
	tpl        *template.Template
}

//go:embed templates/index.html
var content embed.FS

func NewServer(d *dispatch.Dispatcher) *Server {
	tpl := template.Must(template.New("index.html").ParseFS(content, "templates/index.html"))
	return &Server{Dispatcher: d, tpl: tpl}
}

func (s *Server) routes() {
	http.HandleFunc("/", s.handleIndex)
	http.HandleFunc("/status", s.handleStatus)
	http.HandleFunc("/clock", s.handleClock)
	http.HandleFunc("/command/arm", s.handleArm)
	http.HandleFunc("/command/takeoff", s.handleTakeoff)
	http.HandleFunc("/command/start", s.handleStart)
	http.HandleFunc("/command/pause", s.handlePause)
	http.HandleFunc("/command/resume", s.handleResume)
	http.HandleFunc("/command/land", s.handleLand)
	http.HandleFunc("/command/stop", s.handleStop)
	http.HandleFunc("/command/reset", s.handleReset)
	http.HandleFunc("/trajectory", s.handleTrajectory)
}

func (s *Server) Start(addr string) error {
	s.routes()
	return http.ListenAndServe(addr, nil)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := struct {
		MissionID string
		Vehicles  []dispatch.VehicleStatus
	}{
		MissionID: s.Dispatcher.MissionID(),
		Vehicles:  s.Dispatcher.Status(),
	}
	s.tpl.Execute(w, data)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.Dispatcher.Status())
}

func (s *Server) handleClock(w http.ResponseWriter, r *http.Request) {
	clock, cycle := s.Dispatcher.Clock()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"mission_id": s.Dispatcher.MissionID(),
		"clock":      clock,
		"cycle":      cycle,
	})
}

func (s *Server) handleArm(w http.ResponseWriter, r *http.Request) {
	s.issue(w, session.Arm())
}

func (s *Server) handleTakeoff(w http.ResponseWriter, r *http.Request) {
	height := queryFloat(r, "height", 1.0)
	duration := queryFloat(r, "duration", 2.0)
	s.issue(w, session.TakeoffCmd(height, duration))
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.issue(w, session.StartCmd())
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.issue(w, session.PauseCmd())
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.issue(w, session.ResumeCmd())
}

func (s *Server) handleLand(w http.ResponseWriter, r *http.Request) {
	duration := queryFloat(r, "duration", 3.0)
	s.issue(w, session.LandCmd(duration))
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.issue(w, session.StopCmd())
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.URL.Query().Get("vehicle"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "vehicle query parameter required")
		return
	}
	s.issue(w, session.ResetCmd(id))
}

func (s *Server) handleTrajectory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	id, err := strconv.Atoi(r.URL.Query().Get("vehicle"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "vehicle query parameter required")
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	if err := s.Dispatcher.UploadTrajectory(id, body); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"accepted": true, "vehicle": id})
}

// issue broadcasts cmd and renders the outcome.
func (s *Server) issue(w http.ResponseWriter, cmd session.Command) {
	if err := s.Dispatcher.Issue(cmd); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"command":    cmd.Kind.String(),
		"command_id": cmd.ID.String(),
	})
}

// statusFor maps dispatch errors to HTTP codes: state conflicts are 409,
// everything else the caller got wrong is 400.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrPreconditionNotMet), errors.Is(err, dispatch.ErrSwarmNotReady):
		return http.StatusConflict
	case errors.Is(err, dispatch.ErrUnknownVehicle), errors.Is(err, trajectory.ErrInvalidTrajectory):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func queryFloat(r *http.Request, key string, def float64) float64 {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return def
	}
	return f
}
