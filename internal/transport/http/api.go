package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"amc-progress-service/internal/app"
	"amc-progress-service/internal/domain"
	"amc-progress-service/internal/stats"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// API serves the progress, sync, practice and live-session endpoints.
type API struct {
	registry    *app.Registry
	sync        *app.SyncService
	practice    *app.PracticeService
	live        *app.LiveService
	leaderboard app.LeaderboardReader
}

func NewAPI(registry *app.Registry, sync *app.SyncService, practice *app.PracticeService, live *app.LiveService, leaderboard app.LeaderboardReader) *API {
	return &API{registry: registry, sync: sync, practice: practice, live: live, leaderboard: leaderboard}
}

// NewRouter assembles the gin engine.
func NewRouter(api *API, ws *WSHandler, auth *Authenticator, logOut io.Writer) *gin.Engine {
	r := gin.New()
	r.Use(gin.LoggerWithWriter(logOut), gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	g := r.Group("/api", auth.Middleware())
	g.POST("/tests", api.submitTest)
	g.GET("/tests", api.listTests)
	g.GET("/profile", api.profile)
	g.GET("/stats", api.stats)
	g.GET("/coins", api.coinTransactions)
	g.POST("/bonus", api.claimBonus)
	g.POST("/avatars/:id", api.unlockAvatar)
	g.GET("/preferences", api.preferences)
	g.PUT("/preferences", api.updatePreferences)
	g.DELETE("/data", api.reset)
	g.GET("/events", api.streamEvents)
	g.POST("/sync", api.migrate)
	g.GET("/sync", api.syncStatus)
	g.GET("/practice", api.generatePractice)
	g.GET("/leaderboard", api.topProfiles)
	g.GET("/live", api.lobbies)
	g.POST("/live", api.createSession)
	g.GET("/live/:id", api.sessionSnapshot)

	r.GET("/ws", auth.Middleware(), ws.Serve)
	return r
}

func (a *API) progress(c *gin.Context) (*app.ProgressService, bool) {
	svc, err := a.registry.For(userID(c))
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	return svc, true
}

type submitRequest struct {
	TestType string               `json:"testType" binding:"required"`
	Year     int                  `json:"year" binding:"required"`
	Input    string               `json:"input"`
	Key      string               `json:"key"`
	Topics   map[int]domain.Topic `json:"topics"`
	Label    string               `json:"label"`
}

func (a *API) submitTest(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	svc, ok := a.progress(c)
	if !ok {
		return
	}
	score, err := svc.SubmitTest(c.Request.Context(), app.Submission{
		TestType: req.TestType,
		Year:     req.Year,
		Input:    req.Input,
		Key:      req.Key,
		Topics:   req.Topics,
		Label:    req.Label,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, score)
}

func (a *API) listTests(c *gin.Context) {
	svc, ok := a.progress(c)
	if !ok {
		return
	}
	scores, err := svc.Scores(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats.Apply(scores, filterFromQuery(c)))
}

func (a *API) profile(c *gin.Context) {
	svc, ok := a.progress(c)
	if !ok {
		return
	}
	profile, err := svc.Profile(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": profile, "notices": svc.Notices()})
}

func (a *API) stats(c *gin.Context) {
	svc, ok := a.progress(c)
	if !ok {
		return
	}
	scores, err := svc.Scores(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	top, _ := strconv.Atoi(c.DefaultQuery("top", "3"))
	c.JSON(http.StatusOK, stats.Summarize(scores, filterFromQuery(c), top))
}

func filterFromQuery(c *gin.Context) stats.Filter {
	f := stats.Filter{Label: c.Query("label")}
	if t, ok := domain.ParseTestType(c.Query("testType")); ok {
		f.TestType = t
	}
	if t, ok := domain.ParseTestType(c.Query("family")); ok {
		f.Family = t
	}
	return f
}

func (a *API) coinTransactions(c *gin.Context) {
	svc, ok := a.progress(c)
	if !ok {
		return
	}
	txs, err := svc.CoinTransactions(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, txs)
}

func (a *API) claimBonus(c *gin.Context) {
	svc, ok := a.progress(c)
	if !ok {
		return
	}
	res, err := svc.ClaimDailyBonus(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (a *API) unlockAvatar(c *gin.Context) {
	svc, ok := a.progress(c)
	if !ok {
		return
	}
	balance, err := svc.UnlockAvatar(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"coins": balance})
}

func (a *API) preferences(c *gin.Context) {
	svc, ok := a.progress(c)
	if !ok {
		return
	}
	prefs, err := svc.Preferences(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, prefs)
}

func (a *API) updatePreferences(c *gin.Context) {
	var prefs app.Preferences
	if err := c.ShouldBindJSON(&prefs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	svc, ok := a.progress(c)
	if !ok {
		return
	}
	if err := svc.UpdatePreferences(c.Request.Context(), prefs); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) reset(c *gin.Context) {
	svc, ok := a.progress(c)
	if !ok {
		return
	}
	if err := svc.Reset(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// streamEvents forwards progress notifications as server-sent events.
func (a *API) streamEvents(c *gin.Context) {
	svc, ok := a.progress(c)
	if !ok {
		return
	}
	ch, cancel := svc.Events().Subscribe()
	defer cancel()
	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Kind), ev)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

type migrateResponse struct {
	app.SyncResult
	Error string `json:"error,omitempty"`
}

func (a *API) migrate(c *gin.Context) {
	if a.sync == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "remote store not configured"})
		return
	}
	res, err := a.sync.Migrate(c.Request.Context(), userID(c))
	if errors.Is(err, domain.ErrGuestMode) {
		writeError(c, err)
		return
	}
	resp := migrateResponse{SyncResult: res}
	status := http.StatusOK
	if err != nil {
		// Unsynced records stay queued for the next run.
		resp.Error = err.Error()
		status = http.StatusBadGateway
	}
	c.JSON(status, resp)
}

func (a *API) syncStatus(c *gin.Context) {
	if a.sync == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "remote store not configured"})
		return
	}
	st, err := a.sync.Status(c.Request.Context(), userID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (a *API) generatePractice(c *gin.Context) {
	filter, err := questionFilter(c.Query("family"), c.Query("min"), c.Query("max"))
	if err != nil {
		writeError(c, err)
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	set, err := a.practice.Generate(c.Request.Context(), filter, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, set)
}

func questionFilter(family, lo, hi string) (domain.QuestionFilter, error) {
	var f domain.QuestionFilter
	if family != "" {
		t, ok := domain.ParseTestType(family)
		if !ok {
			return f, domain.Invalid("family", domain.ErrInvalidTestType)
		}
		f.Family = t.Family()
	}
	var err error
	if lo != "" {
		if f.MinNumber, err = strconv.Atoi(lo); err != nil {
			return f, domain.Invalid("min", err)
		}
	}
	if hi != "" {
		if f.MaxNumber, err = strconv.Atoi(hi); err != nil {
			return f, domain.Invalid("max", err)
		}
	}
	return f, nil
}

func (a *API) topProfiles(c *gin.Context) {
	if a.leaderboard == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "remote store not configured"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()
	rows, err := a.leaderboard.TopProfiles(ctx, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

type createSessionRequest struct {
	Family    string `json:"family"`
	MinNumber int    `json:"minNumber"`
	MaxNumber int    `json:"maxNumber"`
	Count     int    `json:"count"`
}

func (a *API) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	filter, err := questionFilter(req.Family, "", "")
	if err != nil {
		writeError(c, err)
		return
	}
	filter.MinNumber, filter.MaxNumber = req.MinNumber, req.MaxNumber
	snap, err := a.live.CreateSession(c.Request.Context(), userID(c), filter, req.Count)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, snap)
}

func (a *API) lobbies(c *gin.Context) {
	c.JSON(http.StatusOK, a.live.Lobbies(c.Request.Context()))
}

func (a *API) sessionSnapshot(c *gin.Context) {
	snap, err := a.live.Snapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

