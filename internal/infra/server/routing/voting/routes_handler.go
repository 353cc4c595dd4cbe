package voting

import (
	"net/http"

	"github.com/gin-gonic/gin"

	votingController "github.com/fedus/safe-crossing-cf/internal/api/controllers/voting"
	"github.com/fedus/safe-crossing-cf/internal/api/models/voting"
	"github.com/fedus/safe-crossing-cf/internal/infra/server/routing"
)

type RoutesHandler struct {
	Controller votingController.Controller
}

func (h *RoutesHandler) RegisterRoutes(routerGroup *gin.RouterGroup) {
	routerGroup.POST("/initializeUser", h.initializeUser)
	routerGroup.POST("/vote", h.vote)
	routerGroup.POST("/getNextBatch", h.getNextBatch)
	routerGroup.GET("/meta", h.meta)
}

// @Summary Initialize a User
// @ID initialize-user
// @Tags voting
// @Description Makes every crossing visible to the User. Calling it again is a no-op.
// @Accept  json
// @Produce  json
// @Param   request body voting.InitializeUserRequest true "The request body"
// @Success 200 {object} voting.Response "USER_INITIALIZED or USER_ALREADY_INITIALIZED"
// @Failure 400 {object} common.Body "Invalid JSON"
// @Router /initializeUser [post]
func (h *RoutesHandler) initializeUser(c *gin.Context) {
	var req voting.InitializeUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		routing.HandleJsonSerdesErr(c, err)
	} else {
		if outcome, err := h.Controller.InitializeUser(c.Request.Context(), req.Data.UserUuid); err == nil {
			c.JSON(http.StatusOK, voting.Response{Result: outcome})
		} else {
			c.JSON(err.StatusCode, err.Body)
		}
	}
}

// @Summary Cast a Vote
// @ID cast-vote
// @Tags voting
// @Description Casts or revises the User's vote on a crossing. Failures other than bad input are
// @Description reported in the result as "Failed to cast vote: <reason>".
// @Accept  json
// @Produce  json
// @Param   request body voting.VoteRequest true "The request body"
// @Success 200 {object} voting.Response "Vote cast"
// @Failure 400 {object} common.Body "Invalid JSON"
// @Router /vote [post]
func (h *RoutesHandler) vote(c *gin.Context) {
	var req voting.VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		routing.HandleJsonSerdesErr(c, err)
	} else {
		if result, err := h.Controller.Vote(c.Request.Context(), req.Data.UserUuid, req.Data.CrossingNodeId, *req.Data.Vote); err == nil {
			c.JSON(http.StatusOK, voting.Response{Result: result})
		} else {
			c.JSON(err.StatusCode, err.Body)
		}
	}
}

// @Summary Get the next batch of crossings
// @ID get-next-batch
// @Tags voting
// @Description Returns crossings the User has yet to vote on, least voted first.
// @Accept  json
// @Produce  json
// @Param   request body voting.NextBatchRequest true "The request body"
// @Success 200 {object} voting.Response "A list of crossings"
// @Failure 400 {object} common.Body "Invalid JSON"
// @Failure 404 {object} common.Body "The last crossing does not exist"
// @Router /getNextBatch [post]
func (h *RoutesHandler) getNextBatch(c *gin.Context) {
	var req voting.NextBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		routing.HandleJsonSerdesErr(c, err)
	} else {
		if crossings, err := h.Controller.NextBatch(c.Request.Context(), req.Data.UserId, req.Data.Quantity, req.Data.LastCrossingId); err == nil {
			c.JSON(http.StatusOK, voting.Response{Result: crossings})
		} else {
			c.JSON(err.StatusCode, err.Body)
		}
	}
}

// @Summary Get the meta aggregate
// @ID get-meta
// @Tags voting
// @Description Returns result counts over every crossing with enough votes
// @Produce  json
// @Success 200 {object} voting.Response
// @Router /meta [get]
func (h *RoutesHandler) meta(c *gin.Context) {
	if m, err := h.Controller.Meta(c.Request.Context()); err == nil {
		c.JSON(http.StatusOK, voting.Response{Result: m})
	} else {
		c.JSON(err.StatusCode, err.Body)
	}
}
