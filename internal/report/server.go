package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/golang/geo/r3"

	"github.com/lmb-freiburg/irocs/internal/config"
	"github.com/lmb-freiburg/irocs/internal/db"
	"github.com/lmb-freiburg/irocs/internal/fsutil"
	"github.com/lmb-freiburg/irocs/internal/httputil"
	"github.com/lmb-freiburg/irocs/internal/monitoring"
	"github.com/lmb-freiburg/irocs/internal/pointio"
	"github.com/lmb-freiburg/irocs/internal/security"
	"github.com/lmb-freiburg/irocs/internal/shell"
	"github.com/lmb-freiburg/irocs/internal/timeutil"
)

const (
	// maxUploadBytes bounds point clouds posted to the server.
	maxUploadBytes = 64 << 20

	defaultProfileSamples = 200
	defaultLatitudes      = 64
	defaultLongitudes     = 32
	maxMeshResolution     = 1024
)

// ServerConfig contains configuration options for the report server.
type ServerConfig struct {
	Address string
	DB      *db.DB
	Tuning  *config.TuningConfig
	// DataDir, when set, lets clients fit clouds already on the server by
	// naming them relative to this directory.
	DataDir string
	// ProfileSamples is the number of arc-length samples in profile charts.
	ProfileSamples int
}

// Server serves the model store, fits and charts over HTTP.
type Server struct {
	address        string
	db             *db.DB
	tuning         *config.TuningConfig
	dataDir        string
	profileSamples int
	fs             fsutil.FileSystem
	clock          timeutil.Clock
	server         *http.Server

	// cache is nil when it could not be created; models are then loaded on
	// every request.
	cache *modelCache
}

// NewServer creates a server with the provided configuration.
func NewServer(cfg ServerConfig) *Server {
	s := &Server{
		address:        cfg.Address,
		db:             cfg.DB,
		tuning:         cfg.Tuning,
		dataDir:        cfg.DataDir,
		profileSamples: cfg.ProfileSamples,
		fs:             fsutil.OSFileSystem{},
		clock:          timeutil.RealClock{},
	}
	cache, err := newModelCache(maxCachedModels)
	if err != nil {
		monitoring.Logf("[report] model cache disabled: %v", err)
	} else {
		s.cache = cache
	}
	if s.tuning == nil {
		s.tuning = config.DefaultTuningConfig()
	}
	if s.profileSamples < 2 {
		s.profileSamples = defaultProfileSamples
	}
	s.server = &http.Server{
		Addr:              s.address,
		Handler:           s.setupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until ctx is cancelled, then shuts the server down.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		monitoring.Logf("[report] starting HTTP server on %s", s.address)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	monitoring.Logf("[report] shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("[report] HTTP server shutdown error: %v", err)
		if err := s.server.Close(); err != nil {
			monitoring.Logf("[report] HTTP server force close error: %v", err)
		}
	}
	if s.cache != nil {
		s.cache.close()
	}
	monitoring.Logf("[report] HTTP server routine stopped")
	return nil
}

// setupRoutes configures the HTTP routes and handlers.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/params", s.handleParams)
	mux.HandleFunc("GET /api/models", s.handleListModels)
	mux.HandleFunc("POST /api/models", s.handleFitModel)
	mux.HandleFunc("GET /api/models/{id}", s.handleGetModel)
	mux.HandleFunc("DELETE /api/models/{id}", s.handleDeleteModel)
	mux.HandleFunc("GET /api/models/{id}/profile", s.handleProfileJSON)
	mux.HandleFunc("POST /api/models/{id}/coordinates", s.handleCoordinates)
	mux.HandleFunc("GET /api/models/{id}/mesh.obj", s.handleMesh(pointio.FormatOBJ))
	mux.HandleFunc("GET /api/models/{id}/mesh.stl", s.handleMesh(pointio.FormatSTL))

	mux.HandleFunc("GET /charts/models/{id}", s.handleReportChart)
	mux.HandleFunc("GET /charts/models/{id}/profile", s.handleProfileChart)
	mux.HandleFunc("GET /charts/models/{id}/profile.png", s.handleProfilePNG)
	mux.HandleFunc("GET /charts/models/{id}/mesh", s.handleMeshChart)

	if s.db != nil {
		if err := s.db.AttachAdminRoutes(mux); err != nil {
			monitoring.Logf("[report] failed to attach admin routes: %v", err)
		}
	}
	return mux
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "ok", "service": "irocs", "timestamp": "%s"}`, time.Now().UTC().Format(time.RFC3339))
}

// handleParams returns the effective tuning used for new fits.
func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, s.tuning)
}

// handleListModels returns stored model records, newest first.
// Query params:
//
//	limit (optional, default 50, max 500)
func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, "no database configured")
		return
	}
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 || n > 500 {
			httputil.WriteJSONError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}
	models, err := s.db.ListModels(r.Context(), limit)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list models: %v", err))
		return
	}
	if models == nil {
		models = []db.ModelRecord{}
	}
	httputil.WriteJSON(w, http.StatusOK, models)
}

// readPoints reads the request cloud, either from the body or from the
// path query parameter resolved under the data directory.
func (s *Server) readPoints(w http.ResponseWriter, r *http.Request) ([]r3.Vector, string, error) {
	if name := r.URL.Query().Get("path"); name != "" {
		if s.dataDir == "" {
			return nil, "", fmt.Errorf("%w: server has no data directory", security.ErrOutsideRoot)
		}
		path, err := security.ResolveWithin(s.dataDir, name)
		if err != nil {
			return nil, "", err
		}
		points, err := pointio.ReadPointsFile(s.fs, path)
		return points, path, err
	}
	points, err := pointio.ReadPoints(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	return points, "", err
}

// fitStatus maps fit failures to HTTP status codes.
func fitStatus(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, shell.ErrCancelled):
		return http.StatusServiceUnavailable
	case errors.Is(err, shell.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, shell.ErrInsufficientData),
		errors.Is(err, shell.ErrDegenerateGeometry),
		errors.Is(err, shell.ErrNumericalInstability),
		errors.Is(err, shell.ErrNotFitted):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// handleFitModel fits a posted cloud and stores the result.
// Query params:
//
//	name (optional, defaults to the path or "upload")
//	path (optional, cloud file relative to the data directory; the body is
//	      read otherwise)
func (s *Server) handleFitModel(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, "no database configured")
		return
	}
	points, source, err := s.readPoints(w, r)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, security.ErrOutsideRoot) {
			status = http.StatusForbidden
		}
		httputil.WriteJSONError(w, status, fmt.Sprintf("read points: %v", err))
		return
	}

	params := s.tuning.ToParams()
	params.Progress = &monitoring.LogProgress{Prefix: "report", Every: 50}

	ctx, cancel := context.WithTimeout(r.Context(), s.tuning.GetFitTimeout())
	defer cancel()
	start := s.clock.Now()
	t, err := shell.Fit(ctx, points, params)
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w: %w", ctx.Err(), err)
		}
		httputil.WriteJSONError(w, fitStatus(err), fmt.Sprintf("fit: %v", err))
		return
	}
	monitoring.Logf("[report] fitted %d points in %s", len(points), s.clock.Since(start).Round(time.Millisecond))

	paramsJSON, err := json.Marshal(s.tuning)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("encode params: %v", err))
		return
	}
	rec := &db.ModelRecord{
		Name:       r.URL.Query().Get("name"),
		SourcePath: source,
		PointCount: len(points),
		ParamsJSON: string(paramsJSON),
	}
	if rec.Name == "" {
		rec.Name = "upload"
		if source != "" {
			rec.Name = r.URL.Query().Get("path")
		}
	}
	if err := s.db.SaveModel(r.Context(), rec, t); err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("save model: %v", err))
		return
	}
	if s.cache != nil {
		s.cache.put(s.cache.begin(), rec, t)
	}
	httputil.WriteJSON(w, http.StatusCreated, rec)
}

// transform returns the model with the given ID, loading it on first use.
func (s *Server) transform(ctx context.Context, id string) (*shell.Transform, *db.ModelRecord, error) {
	if s.db == nil {
		return nil, nil, errors.New("no database configured")
	}
	if s.cache == nil {
		return s.db.LoadModel(ctx, id)
	}
	if c, ok := s.cache.get(id); ok {
		rec := c.rec
		return c.t, &rec, nil
	}
	gen := s.cache.begin()
	t, rec, err := s.db.LoadModel(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	s.cache.put(gen, rec, t)
	return t, rec, nil
}

// model resolves the {id} path value, writing the error response on
// failure.
func (s *Server) model(w http.ResponseWriter, r *http.Request) (*shell.Transform, *db.ModelRecord, bool) {
	t, rec, err := s.transform(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, db.ErrModelNotFound):
		httputil.WriteJSONError(w, http.StatusNotFound, err.Error())
		return nil, nil, false
	case err != nil:
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("load model: %v", err))
		return nil, nil, false
	}
	return t, rec, true
}

func (s *Server) handleGetModel(w http.ResponseWriter, r *http.Request) {
	_, rec, ok := s.model(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteModel(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, "no database configured")
		return
	}
	id := r.PathValue("id")
	err := s.db.DeleteModel(r.Context(), id)
	if s.cache != nil {
		s.cache.evict(id)
	}
	switch {
	case errors.Is(err, db.ErrModelNotFound):
		httputil.WriteJSONError(w, http.StatusNotFound, err.Error())
	case err != nil:
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("delete model: %v", err))
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleCoordinates maps the posted points into the model's coordinate
// system and returns them as CSV.
// Query params:
//
//	normalized (optional, "true" divides the radial coordinate by the local
//	            cross-section)
func (s *Server) handleCoordinates(w http.ResponseWriter, r *http.Request) {
	t, _, ok := s.model(w, r)
	if !ok {
		return
	}
	normalized, err := boolParam(r, "normalized")
	if err != nil {
		httputil.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	points, err := pointio.ReadPoints(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		httputil.WriteJSONError(w, http.StatusBadRequest, fmt.Sprintf("read points: %v", err))
		return
	}
	coords, err := t.MapPoints(r.Context(), points, normalized)
	if err != nil {
		httputil.WriteJSONError(w, fitStatus(err), fmt.Sprintf("map points: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	if err := pointio.WriteCoordinatesCSV(w, points, coords); err != nil {
		monitoring.Logf("[report] failed to write coordinates: %v", err)
	}
}

func boolParam(r *http.Request, name string) (bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %q", name, v)
	}
	return b, nil
}

func intParam(r *http.Request, name string, def, lo, hi int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("%s must be an integer between %d and %d", name, lo, hi)
	}
	return n, nil
}

// surface resolves the lat/lon query params and builds the mesh.
func (s *Server) surface(w http.ResponseWriter, r *http.Request, t *shell.Transform) (*shell.Mesh, bool) {
	lat, err := intParam(r, "lat", defaultLatitudes, 2, maxMeshResolution)
	if err == nil {
		var lon int
		lon, err = intParam(r, "lon", defaultLongitudes, 3, maxMeshResolution)
		if err == nil {
			m, err := t.Surface(lat, lon)
			if err != nil {
				httputil.WriteJSONError(w, fitStatus(err), fmt.Sprintf("surface: %v", err))
				return nil, false
			}
			return m, true
		}
	}
	httputil.WriteJSONError(w, http.StatusBadRequest, err.Error())
	return nil, false
}

// handleMesh returns the fitted surface as a downloadable mesh.
// Query params:
//
//	lat (optional, rings along the axis, default 64)
//	lon (optional, vertices per ring, default 32)
func (s *Server) handleMesh(format pointio.Format) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, rec, ok := s.model(w, r)
		if !ok {
			return
		}
		m, ok := s.surface(w, r, t)
		if !ok {
			return
		}

		write := pointio.WriteOBJ
		if format == pointio.FormatSTL {
			write = pointio.WriteSTL
		}
		httputil.SetAttachment(w, "model/"+string(format), rec.Name, string(format))
		if err := write(w, m); err != nil {
			monitoring.Logf("[report] failed to write mesh: %v", err)
		}
	}
}

func (s *Server) profile(w http.ResponseWriter, r *http.Request) (*Profile, *db.ModelRecord, *shell.Transform, bool) {
	t, rec, ok := s.model(w, r)
	if !ok {
		return nil, nil, nil, false
	}
	p, err := NewProfile(t, s.profileSamples)
	if err != nil {
		httputil.WriteJSONError(w, fitStatus(err), fmt.Sprintf("profile: %v", err))
		return nil, nil, nil, false
	}
	return p, rec, t, true
}

func (s *Server) handleProfileJSON(w http.ResponseWriter, r *http.Request) {
	p, _, _, ok := s.profile(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func (s *Server) handleProfileChart(w http.ResponseWriter, r *http.Request) {
	p, rec, _, ok := s.profile(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := RenderProfileHTML(w, p, rec.Name); err != nil {
		monitoring.Logf("[report] failed to render profile chart: %v", err)
	}
}

func (s *Server) handleProfilePNG(w http.ResponseWriter, r *http.Request) {
	p, rec, _, ok := s.profile(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if err := WriteProfilePNG(w, p, rec.Name); err != nil {
		monitoring.Logf("[report] failed to render profile plot: %v", err)
	}
}

func (s *Server) handleMeshChart(w http.ResponseWriter, r *http.Request) {
	t, rec, ok := s.model(w, r)
	if !ok {
		return
	}
	m, ok := s.surface(w, r, t)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := RenderMeshHTML(w, m, rec.Name); err != nil {
		monitoring.Logf("[report] failed to render mesh chart: %v", err)
	}
}

func (s *Server) handleReportChart(w http.ResponseWriter, r *http.Request) {
	p, rec, t, ok := s.profile(w, r)
	if !ok {
		return
	}
	m, ok := s.surface(w, r, t)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := RenderReportHTML(w, p, m, rec.Name); err != nil {
		monitoring.Logf("[report] failed to render report: %v", err)
	}
}
