package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vivenzalife/vivenza/internal/social"
)

type SocialHandler struct {
	social *social.Service
}

func NewSocialHandler(socialSvc *social.Service) *SocialHandler {
	return &SocialHandler{social: socialSvc}
}

type SharePostRequest struct {
	Caption string `json:"caption"`
}

type CommentRequest struct {
	Content string `json:"content"`
}

func (h *SocialHandler) GetFeed(c *gin.Context) {
	posts, err := h.social.Feed(c.Request.Context(), callerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts})
}

func (h *SocialHandler) GetUserPosts(c *gin.Context) {
	posts, err := h.social.UserPosts(c.Request.Context(), callerID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts})
}

// CreatePost takes a multipart form with an "image" file and an optional
// "caption".
func (h *SocialHandler) CreatePost(c *gin.Context) {
	file, filename, err := optionalFile(c, "image")
	if err != nil {
		invalidRequest(c)
		return
	}
	if file != nil {
		defer file.Close()
	}

	// A nil file reaches the service as a nil reader.
	post, err := h.social.CreatePost(c.Request.Context(), callerID(c), c.PostForm("caption"), file, filename)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, post)
}

func (h *SocialHandler) SharePost(c *gin.Context) {
	var req SharePostRequest
	// The body is optional.
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			invalidRequest(c)
			return
		}
	}

	post, err := h.social.SharePost(c.Request.Context(), callerID(c), c.Param("id"), req.Caption)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, post)
}

func (h *SocialHandler) ToggleLike(c *gin.Context) {
	liked, err := h.social.ToggleLike(c.Request.Context(), callerID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"liked": liked})
}

func (h *SocialHandler) GetComments(c *gin.Context) {
	comments, err := h.social.Comments(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": comments})
}

func (h *SocialHandler) AddComment(c *gin.Context) {
	var req CommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidRequest(c)
		return
	}

	comment, err := h.social.AddComment(c.Request.Context(), callerID(c), c.Param("id"), req.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

func (h *SocialHandler) DeletePost(c *gin.Context) {
	if err := h.social.DeletePost(c.Request.Context(), callerID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *SocialHandler) Follow(c *gin.Context) {
	if err := h.social.Follow(c.Request.Context(), callerID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "following"})
}

func (h *SocialHandler) Unfollow(c *gin.Context) {
	if err := h.social.Unfollow(c.Request.Context(), callerID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "unfollowed"})
}

// GetStats returns the profile counters and whether the caller follows the
// user.
func (h *SocialHandler) GetStats(c *gin.Context) {
	ctx := c.Request.Context()
	userID := c.Param("id")

	stats, err := h.social.ProfileStats(ctx, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	following, err := h.social.IsFollowing(ctx, callerID(c), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"posts_count":     stats.PostsCount,
		"followers_count": stats.FollowersCount,
		"following_count": stats.FollowingCount,
		"is_following":    following,
	})
}

func (h *SocialHandler) GetFollowers(c *gin.Context) {
	users, err := h.social.Followers(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

func (h *SocialHandler) GetFollowing(c *gin.Context) {
	users, err := h.social.Following(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}
