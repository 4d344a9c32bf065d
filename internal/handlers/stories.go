package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vivenzalife/vivenza/internal/stories"
)

type StoryHandler struct {
	stories *stories.Service
}

func NewStoryHandler(storySvc *stories.Service) *StoryHandler {
	return &StoryHandler{stories: storySvc}
}

type CreateStoryRequest struct {
	ImageURL string `json:"image_url"`
}

// CreateStory takes either a multipart "image" upload or a JSON body with an
// already hosted image_url.
func (h *StoryHandler) CreateStory(c *gin.Context) {
	var img stories.Image

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		file, filename, err := optionalFile(c, "image")
		if err != nil {
			invalidRequest(c)
			return
		}
		if file != nil {
			defer file.Close()
			img = stories.Image{Data: file, Name: filename}
		}
	} else {
		var req CreateStoryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			invalidRequest(c)
			return
		}
		img.URL = strings.TrimSpace(req.ImageURL)
	}

	story, err := h.stories.Create(c.Request.Context(), callerID(c), img)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, story)
}

func (h *StoryHandler) GetStories(c *gin.Context) {
	authors, err := h.stories.ListActiveAuthors(c.Request.Context(), callerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stories": authors})
}

func (h *StoryHandler) GetUserStories(c *gin.Context) {
	list, err := h.stories.ListActiveByUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stories": list})
}
