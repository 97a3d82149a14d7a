package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/min9-wan9/Chat/internal/auth"
	"github.com/min9-wan9/Chat/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// multipartSlack covers the multipart framing around the file part.
const multipartSlack = 1 << 20

// Handler 聚合所有 HTTP handler，依赖注入 service 层。
type Handler struct {
	fileSvc *service.FileService
	roomSvc *service.RoomService
}

func NewHandler(fileSvc *service.FileService, roomSvc *service.RoomService) *Handler {
	return &Handler{fileSvc: fileSvc, roomSvc: roomSvc}
}

// Upload 处理文件上传请求。
func (h *Handler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.fileSvc.MaxBytes()+multipartSlack)
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			h.tooLarge(c)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file provided"})
		return
	}
	defer file.Close()

	result, err := h.fileSvc.Save(c.Request.Context(), header.Filename, header.Size, file)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, result)
	case errors.Is(err, service.ErrFileEmpty):
		c.JSON(http.StatusBadRequest, gin.H{"error": "File is empty"})
	case errors.Is(err, service.ErrFileTooLarge):
		h.tooLarge(c)
	default:
		log.Error().Err(err).Str("file", header.Filename).Msg("upload")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Upload failed"})
	}
}

func (h *Handler) tooLarge(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("File too large (max %dMB)", h.fileSvc.MaxBytes()>>20)})
}

// Download 返回已上传文件的原始字节。
func (h *Handler) Download(c *gin.Context) {
	f, err := h.fileSvc.Open(c.Request.Context(), c.Param("filename"))
	switch {
	case err == nil:
	case errors.Is(err, service.ErrInvalidName):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid file name"})
		return
	case errors.Is(err, service.ErrFileNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
		return
	default:
		log.Error().Err(err).Str("file", c.Param("filename")).Msg("download")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Download failed"})
		return
	}

	c.Header("Content-Type", f.ContentType)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", safeFilename(f.OriginalName)))
	c.Header("Content-Length", strconv.FormatInt(f.Size, 10))
	c.File(f.Path)
}

func safeFilename(name string) string {
	return strings.NewReplacer(`"`, "", "\r", "", "\n", "", `\`, "").Replace(name)
}

// ListRooms 处理获取房间列表请求。
func (h *Handler) ListRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": h.roomSvc.List()})
}

// DeleteRoom 由管理员删除房间，所有成员被移出。
func (h *Handler) DeleteRoom(c *gin.Context) {
	name := c.Param("name")
	actor := auth.GetAdmin(c)
	if actor == "" {
		actor = "admin"
	}
	err := h.roomSvc.Delete(name, actor)
	switch {
	case err == nil:
		c.Status(http.StatusNoContent)
	case errors.Is(err, service.ErrInvalidRoom):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room name"})
	case errors.Is(err, service.ErrRoomNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
	default:
		log.Error().Err(err).Str("room", name).Msg("delete room")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete room"})
	}
}
