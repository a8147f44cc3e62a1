package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"spritegen/internal/domain"
	"spritegen/internal/generation"
)

type jobAccepted struct {
	JobID  string           `json:"jobId"`
	Status domain.JobStatus `json:"status"`
}

type parallaxBody struct {
	LayerCount   int `json:"layerCount"`
	DeviceWidth  int `json:"deviceWidth"`
	DeviceHeight int `json:"deviceHeight"`
}

type depthSplitBody struct {
	LayerCount int `json:"layerCount"`
}

type parallaxBatchBody struct {
	SceneIDs   []string `json:"sceneIds"`
	LayerCount int      `json:"layerCount"`
}

func (a *App) SpritesGenerate(w http.ResponseWriter, r *http.Request) {
	userID := a.requireUser(w, r)
	if userID == "" {
		return
	}
	var req generation.SpriteRequest
	if !a.decode(w, r, &req) {
		return
	}
	jobID, err := a.Gen.StartSprite(r.Context(), userID, req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, jobAccepted{JobID: jobID, Status: domain.JobStatusQueued})
}

func (a *App) ParallaxGenerate(w http.ResponseWriter, r *http.Request) {
	userID := a.requireUser(w, r)
	if userID == "" {
		return
	}
	var body parallaxBody
	if !a.decode(w, r, &body) {
		return
	}
	jobID, err := a.Gen.StartParallax(r.Context(), userID, generation.ParallaxRequest{
		SceneID:      chi.URLParam(r, "sceneID"),
		LayerCount:   body.LayerCount,
		DeviceWidth:  body.DeviceWidth,
		DeviceHeight: body.DeviceHeight,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, jobAccepted{JobID: jobID, Status: domain.JobStatusQueued})
}

func (a *App) ParallaxBatch(w http.ResponseWriter, r *http.Request) {
	userID := a.requireUser(w, r)
	if userID == "" {
		return
	}
	var body parallaxBatchBody
	if !a.decode(w, r, &body) {
		return
	}
	ids, err := a.Gen.StartParallaxBatch(r.Context(), userID, body.SceneIDs, body.LayerCount)
	if err != nil && len(ids) == 0 {
		a.fail(w, r, err)
		return
	}
	resp := map[string]any{"jobIds": ids}
	if err != nil {
		// partial: report what started and why the rest did not
		resp["error"] = err.Error()
	}
	a.json(w, http.StatusAccepted, resp)
}

func (a *App) DepthSplitGenerate(w http.ResponseWriter, r *http.Request) {
	userID := a.requireUser(w, r)
	if userID == "" {
		return
	}
	var body depthSplitBody
	if !a.decode(w, r, &body) {
		return
	}
	jobID, err := a.Gen.StartDepthSplit(r.Context(), userID, generation.DepthSplitRequest{
		SceneID:    chi.URLParam(r, "sceneID"),
		LayerCount: body.LayerCount,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, jobAccepted{JobID: jobID, Status: domain.JobStatusQueued})
}
