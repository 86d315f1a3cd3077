package match

import (
	"net/http"

	"github.com/beka-birhanu/pairpad-api/api/identity"
	"github.com/beka-birhanu/pairpad-api/service/i"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// MatchController manages matchmaking operations.
type MatchController struct {
	matchingService i.Matcher
	userRepo        i.UserRepo
}

// NewMatchController initializes a MatchController.
func NewMatchController(ms i.Matcher, ur i.UserRepo) (*MatchController, error) {
	return &MatchController{
		matchingService: ms,
		userRepo:        ur,
	}, nil
}

// RegisterPublic registers public routes.
func (mc *MatchController) RegisterPublic(route *gin.RouterGroup) {}

// RegisterProtected registers protected routes.
func (mc *MatchController) RegisterProtected(route *gin.RouterGroup) {
	route.POST("/match", mc.findMatch)
}

// findMatch handles a blocking find-match call. The call resolves when a
// partner is found or the matching deadline elapses; a timeout reads as
// "no match found", never as a server error.
func (mc *MatchController) findMatch(ctx *gin.Context) {
	var request FindMatchRequest
	if err := ctx.ShouldBind(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID, ok := claimedUserID(ctx)
	if !ok {
		ctx.Status(http.StatusUnauthorized)
		return
	}

	user, err := mc.userRepo.ByID(userID)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := mc.matchingService.FindMatch(ctx.Request.Context(), user, i.MatchCriteria{
		Topic:      request.Topic,
		Difficulty: request.Difficulty,
	})
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "error while matching"})
		return
	}

	if result == nil {
		ctx.JSON(http.StatusOK, FindMatchResponse{
			Matched: false,
			Message: "no match found, try again",
		})
		return
	}

	ctx.JSON(http.StatusOK, FindMatchResponse{
		Matched:     true,
		RoomID:      result.RoomID,
		PartnerID:   result.PartnerID,
		PartnerName: result.PartnerName,
	})
}

// claimedUserID extracts the authenticated user id from the request claims.
func claimedUserID(ctx *gin.Context) (uuid.UUID, bool) {
	raw, exists := ctx.Get(identity.ContextUserClaims)
	if !exists {
		return uuid.Nil, false
	}
	claims, ok := raw.(map[string]interface{})
	if !ok {
		return uuid.Nil, false
	}
	idString, ok := claims["userID"].(string)
	if !ok {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(idString)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
