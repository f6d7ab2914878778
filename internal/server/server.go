// Package server exposes resume upload, analysis and history over HTTP.
// Caller identity is taken from the X-User-ID header set by the auth proxy.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"go.uber.org/zap"

	"github.com/spigell/resume-gpt/internal/analyzer"
	"github.com/spigell/resume-gpt/internal/ingest"
	"github.com/spigell/resume-gpt/internal/logger"
	"github.com/spigell/resume-gpt/internal/matching"
	"github.com/spigell/resume-gpt/internal/storage"
)

const (
	// UserHeader carries the authenticated user id.
	UserHeader = "X-User-ID"

	userIDKey     = "user_id"
	maxUploadSize = 5 << 20
)

// Service is the analyzer surface the handlers use.
type Service interface {
	Analyze(ctx context.Context, userID uint, resumeID *uint, resumeText, jobDescription string) (*analyzer.Result, error)
	AnalyzeStored(ctx context.Context, userID, resumeID uint, jobDescription string) (*analyzer.Result, error)
	UploadResume(ctx context.Context, userID uint, name, content, filePath string) (*storage.Resume, error)
	History(ctx context.Context, userID uint) ([]analyzer.Result, error)
}

// Documents turns uploaded files into text and keeps the originals.
type Documents interface {
	Text(ctx context.Context, name string, data []byte) (string, error)
	Save(name string, data []byte) (string, error)
	Discard(path string)
}

type Server struct {
	hertz *server.Hertz
}

// New creates a server listening on address with all routes registered.
func New(address string, svc Service, docs Documents, log *zap.Logger) *Server {
	h := server.Default(
		server.WithHostPorts(address),
		server.WithMaxRequestBodySize(maxUploadSize+1<<20),
	)
	Register(h, svc, docs, log)
	return &Server{hertz: h}
}

// Run serves until the process receives a termination signal.
func (s *Server) Run() {
	s.hertz.Spin()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.hertz.Shutdown(ctx)
}

type handlers struct {
	svc    Service
	docs   Documents
	logger *zap.Logger
}

// Register mounts the API routes on h.
func Register(h *server.Hertz, svc Service, docs Documents, log *zap.Logger) {
	hd := &handlers{svc: svc, docs: docs, logger: logger.OrNop(log)}

	h.GET("/", func(c context.Context, ctx *app.RequestContext) {
		ctx.JSON(consts.StatusOK, utils.H{"message": "Welcome to the resume skill analyzer API"})
	})

	resume := h.Group("/resume", requireUser)
	resume.POST("/upload", hd.upload)
	resume.POST("/analyze/:resume_id", hd.analyzeStored)
	resume.POST("/analyze-text", hd.analyzeText)
	resume.GET("/history", hd.history)
}

func requireUser(c context.Context, ctx *app.RequestContext) {
	raw := strings.TrimSpace(string(ctx.GetHeader(UserHeader)))
	id, err := strconv.ParseUint(raw, 10, 32)
	if raw == "" || err != nil || id == 0 {
		ctx.AbortWithStatusJSON(consts.StatusUnauthorized, utils.H{"error": "missing or invalid " + UserHeader + " header"})
		return
	}
	ctx.Set(userIDKey, uint(id))
	ctx.Next(c)
}

func userID(ctx *app.RequestContext) uint {
	v, _ := ctx.Get(userIDKey)
	id, _ := v.(uint)
	return id
}

func (hd *handlers) upload(c context.Context, ctx *app.RequestContext) {
	name := strings.TrimSpace(ctx.PostForm("name"))
	content := ctx.PostForm("text_content")
	filePath := ""

	var upload []byte
	uploadName := ""

	if fh, err := ctx.FormFile("file"); err == nil {
		if fh.Size > maxUploadSize {
			ctx.JSON(consts.StatusRequestEntityTooLarge, utils.H{"error": "file is too large"})
			return
		}

		f, err := fh.Open()
		if err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "cannot open uploaded file"})
			return
		}
		defer f.Close()

		upload, err = io.ReadAll(io.LimitReader(f, maxUploadSize))
		if err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "cannot read uploaded file"})
			return
		}
		uploadName = fh.Filename

		content, err = hd.docs.Text(c, uploadName, upload)
		if err != nil {
			hd.fail(ctx, "reading uploaded file failed", err)
			return
		}
	}

	if name == "" {
		ctx.JSON(consts.StatusBadRequest, utils.H{"error": "name is required"})
		return
	}
	if strings.TrimSpace(content) == "" {
		ctx.JSON(consts.StatusBadRequest, utils.H{"error": "either file or text_content must be provided"})
		return
	}

	if upload != nil {
		path, err := hd.docs.Save(uploadName, upload)
		if err != nil {
			hd.fail(ctx, "storing uploaded file failed", err)
			return
		}
		filePath = path
	}

	resume, err := hd.svc.UploadResume(c, userID(ctx), name, content, filePath)
	if err != nil {
		hd.docs.Discard(filePath)
		hd.fail(ctx, "resume upload failed", err)
		return
	}

	ctx.JSON(consts.StatusOK, utils.H{
		"id":      resume.ID,
		"name":    resume.Name,
		"user_id": resume.UserID,
	})
}

func (hd *handlers) analyzeStored(c context.Context, ctx *app.RequestContext) {
	id, err := strconv.ParseUint(ctx.Param("resume_id"), 10, 32)
	if err != nil {
		ctx.JSON(consts.StatusBadRequest, utils.H{"error": "resume_id must be a positive integer"})
		return
	}

	res, err := hd.svc.AnalyzeStored(c, userID(ctx), uint(id), ctx.PostForm("job_description"))
	if err != nil {
		hd.fail(ctx, "resume analysis failed", err)
		return
	}

	ctx.JSON(consts.StatusOK, res)
}

func (hd *handlers) analyzeText(c context.Context, ctx *app.RequestContext) {
	res, err := hd.svc.Analyze(c, userID(ctx), nil, ctx.PostForm("resume_text"), ctx.PostForm("job_description"))
	if err != nil {
		hd.fail(ctx, "text analysis failed", err)
		return
	}

	ctx.JSON(consts.StatusOK, res)
}

func (hd *handlers) history(c context.Context, ctx *app.RequestContext) {
	results, err := hd.svc.History(c, userID(ctx))
	if err != nil {
		hd.fail(ctx, "history lookup failed", err)
		return
	}

	ctx.JSON(consts.StatusOK, results)
}

func (hd *handlers) fail(ctx *app.RequestContext, msg string, err error) {
	status := statusFor(err)
	if status >= consts.StatusInternalServerError {
		hd.logger.Error(msg, zap.Error(err))
	} else {
		hd.logger.Debug(msg, zap.Error(err), zap.Int("status", status))
	}
	ctx.JSON(status, utils.H{"error": errorMessage(status, err)})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, matching.ErrInvalidArgument):
		return consts.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return consts.StatusNotFound
	case errors.Is(err, analyzer.ErrNoStore):
		return consts.StatusServiceUnavailable
	case errors.Is(err, ingest.ErrUnsupported):
		return consts.StatusUnsupportedMediaType
	case errors.Is(err, ingest.ErrUnreadable):
		return consts.StatusUnprocessableEntity
	default:
		return consts.StatusInternalServerError
	}
}

func errorMessage(status int, err error) string {
	switch status {
	case consts.StatusNotFound:
		return "resume not found"
	case consts.StatusInternalServerError:
		return "internal error"
	default:
		return fmt.Sprint(err)
	}
}
