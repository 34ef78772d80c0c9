package sandbox

import (
	"errors"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"dlclient/internal/remote"
)

type infoRequest struct {
	URL string `json:"url"`
}

type infoResponse struct {
	Title     string   `json:"title"`
	Thumbnail string   `json:"thumbnail"`
	Duration  string   `json:"duration"`
	Uploader  string   `json:"uploader"`
	ViewCount int64    `json:"view_count"`
	Subtitles []string `json:"subtitles"`
}

type downloadResponse struct {
	TaskID string `json:"task_id"`
}

type cancelRequest struct {
	TaskID string `json:"task_id"`
}

// API serves the service contract on top of a Manager.
type API struct {
	manager *Manager
}

func NewAPI(manager *Manager) *API {
	return &API{manager: manager}
}

// RegisterRoutes registers the JSON endpoints under prefix and the artifact
// routes at the site root.
func (a *API) RegisterRoutes(router *gin.Engine, prefix string) {
	api := router.Group(prefix)
	{
		api.POST("/info", a.Info)
		api.POST("/download", a.Download)
		api.GET("/status/:id", a.Status)
		api.POST("/cancel", a.Cancel)
		api.GET("/history", a.History)
		api.DELETE("/files/:name", a.DeleteFile)
		api.GET("/cookies-status", a.CookiesStatus)
		api.POST("/upload-cookies", a.UploadCookies)
	}
	router.GET("/downloads/:name", a.DownloadArtifact)
	router.GET("/view/:name", a.ViewArtifact)
}

// Info resolves metadata for a URL
func (a *API) Info(c *gin.Context) {
	var req infoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	media, err := a.manager.Info(req.URL)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrURLRequired) {
			status = http.StatusBadRequest
		}
		log.Warn().Str("url", req.URL).Err(err).Msg("info failed")
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	subs := media.Subtitles
	if subs == nil {
		subs = []string{}
	}
	c.JSON(http.StatusOK, infoResponse{
		Title:     media.Title,
		Thumbnail: media.Thumbnail,
		Duration:  media.Duration,
		Uploader:  media.Uploader,
		ViewCount: media.ViewCount,
		Subtitles: subs,
	})
}

// Download starts a job
func (a *API) Download(c *gin.Context) {
	var req remote.DownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	job, err := a.manager.CreateJob(req)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrURLRequired) {
			status = http.StatusBadRequest
		}
		log.Warn().Str("url", req.URL).Err(err).Msg("failed to create job")
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, downloadResponse{TaskID: job.ID})
}

// Status reports a job snapshot
func (a *API) Status(c *gin.Context) {
	id := c.Param("id")
	st, ok := a.manager.Status(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
		return
	}
	c.JSON(http.StatusOK, st)
}

// Cancel flags a job for cancellation
func (a *API) Cancel(c *gin.Context) {
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if err := a.manager.Cancel(req.TaskID); err != nil {
		log.Warn().Str("task_id", req.TaskID).Msg("cancel for unknown task")
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cancellation requested"})
}

// History lists stored artifacts, newest first
func (a *API) History(c *gin.Context) {
	entries, err := a.manager.Store().List()
	if err != nil {
		log.Error().Err(err).Msg("history listing failed")
		entries = []remote.HistoryEntry{}
	}
	c.JSON(http.StatusOK, entries)
}

// DeleteFile removes a file or playlist folder
func (a *API) DeleteFile(c *gin.Context) {
	name := c.Param("name")
	err := a.manager.Store().Delete(name)
	switch {
	case err == nil:
		log.Info().Str("name", name).Msg("artifact deleted")
		c.JSON(http.StatusOK, gin.H{"message": "Deleted"})
	case errors.Is(err, ErrInvalidName):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrArtifactNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		log.Error().Str("name", name).Err(err).Msg("delete failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (a *API) CookiesStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"exists": a.manager.CookiesExist()})
}

// UploadCookies stores the multipart field "file"
func (a *API) UploadCookies(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file part"})
		return
	}
	if fh.Filename == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No selected file"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()
	if err := a.manager.SaveCookies(f); err != nil {
		log.Error().Err(err).Msg("cookies upload failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cookies saved"})
}

// DownloadArtifact serves a file as an attachment and extends its expiry
func (a *API) DownloadArtifact(c *gin.Context) {
	a.serveArtifact(c, true)
}

// ViewArtifact serves a file inline and extends its expiry
func (a *API) ViewArtifact(c *gin.Context) {
	a.serveArtifact(c, false)
}

func (a *API) serveArtifact(c *gin.Context, attachment bool) {
	name := c.Param("name")
	p, err := a.manager.Store().Path(name)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	info, err := os.Stat(p)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": ErrArtifactNotFound.Error()})
		return
	}
	if info.IsDir() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "folders cannot be served"})
		return
	}
	if err := a.manager.Store().Touch(name, a.manager.now()); err != nil {
		log.Warn().Str("name", name).Err(err).Msg("touch failed")
	}
	log.Info().Str("name", name).Bool("attachment", attachment).Msg("serving artifact")
	if attachment {
		c.FileAttachment(p, name)
		return
	}
	c.File(p)
}
