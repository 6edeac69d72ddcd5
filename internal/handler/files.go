package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"BucketDash/internal/dto"
	"BucketDash/internal/service"
	"BucketDash/utils"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// multipartOverhead leaves room for form fields and boundaries around the file part.
const multipartOverhead = 1 << 20

// ListFiles returns one listing page.
func (h *Handler) ListFiles(c *gin.Context) {
	var req dto.ListFilesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, fmt.Errorf("invalid request: %w", err))
		return
	}
	page, err := h.svc.Paginator.Page(c.Request.Context(), service.PageRequest{
		Prefix:      req.Prefix,
		PageSize:    req.PageSize,
		PageToken:   req.PageToken,
		PageNumber:  req.PageNumber,
		SearchTerm:  req.SearchTerm,
		SearchScope: req.SearchScope,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	utils.Success(c, page)
}

// UploadFile stores one multipart file under the form's prefix.
func (h *Handler) UploadFile(c *gin.Context) {
	actor := actorFrom(c)
	if h.opts.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.MaxUploadBytes+multipartOverhead)
	}
	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			badRequest(c, fmt.Errorf("file exceeds %d bytes", h.opts.MaxUploadBytes))
			return
		}
		badRequest(c, fmt.Errorf("file required: %w", err))
		return
	}
	file, err := header.Open()
	if err != nil {
		badRequest(c, err)
		return
	}
	defer file.Close()

	reader := io.Reader(file)
	if h.opts.MaxUploadBytes > 0 {
		// One byte over the limit is enough for the service to reject it.
		reader = io.LimitReader(file, h.opts.MaxUploadBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		badRequest(c, fmt.Errorf("read upload: %w", err))
		return
	}

	res, err := h.svc.Uploader.Upload(c.Request.Context(), actor, service.UploadInput{
		Data:        data,
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Prefix:      c.PostForm("prefix"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	utils.Success(c, dto.UploadResponse{
		Key:          res.Record.Key,
		Name:         res.Record.Name,
		Size:         res.Record.Size,
		ContentType:  res.Record.ContentType,
		URL:          res.URL,
		ThumbnailKey: res.ThumbnailKey,
		ThumbnailURL: res.ThumbnailURL,
		BlurDataURL:  res.Record.BlurDataURL,
	})
}

// DeleteFiles deletes a batch of files and reports each item.
func (h *Handler) DeleteFiles(c *gin.Context) {
	var req dto.DeleteFilesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, fmt.Errorf("invalid request: %w", err))
		return
	}
	items := make([]service.DeleteItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = service.DeleteItem{Key: item.Key, ThumbnailKey: item.ThumbnailKey}
	}
	res, err := h.svc.Deleter.DeleteMany(c.Request.Context(), actorFrom(c), items)
	if err != nil {
		writeError(c, err)
		return
	}
	utils.Success(c, res)
}

// FileURL returns a presigned attachment download URL.
func (h *Handler) FileURL(c *gin.Context) {
	var req dto.FileURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, fmt.Errorf("invalid request: %w", err))
		return
	}
	link, err := h.svc.Downloads.DownloadURL(c.Request.Context(), actorFrom(c), req.Key)
	if err != nil {
		writeError(c, err)
		return
	}
	utils.Success(c, link)
}

// DownloadArchive streams selected files and a folder subtree as a zip.
func (h *Handler) DownloadArchive(c *gin.Context) {
	var req dto.ArchiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, fmt.Errorf("invalid request: %w", err))
		return
	}
	entries, err := h.svc.Downloads.ArchiveEntries(c.Request.Context(), actorFrom(c), req.Keys, req.Prefix)
	if err != nil {
		writeError(c, err)
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "archive.zip"
	}
	if !strings.HasSuffix(strings.ToLower(name), ".zip") {
		name += ".zip"
	}
	c.Header("Content-Disposition", utils.AttachmentDisposition(name))
	c.Header("Content-Type", "application/zip")
	c.Status(http.StatusOK)

	// Headers are gone by now; a failure can only cut the stream short.
	if err := h.svc.Downloads.WriteArchive(c.Request.Context(), c.Writer, entries); err != nil {
		log.Error().Err(err).Int("entries", len(entries)).Msg("archive stream aborted")
	}
}
