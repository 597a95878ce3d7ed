package web

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tyemirov/tokengate/internal/authkit"
	"go.uber.org/zap"
)

type profileResponse struct {
	Handle       string `json:"handle"`
	DisplayName  string `json:"displayName"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	Phone        string `json:"phone"`
	ProfileImage string `json:"profileImage"`
}

func profileFrom(user authkit.User) profileResponse {
	return profileResponse{
		Handle:       user.Handle,
		DisplayName:  user.DisplayName,
		Email:        user.Email,
		Role:         user.Role,
		Phone:        user.Phone,
		ProfileImage: user.ProfileImage,
	}
}

// HandleWhoAmI returns the profile of the authenticated caller.
func HandleWhoAmI(logger *zap.Logger, users authkit.UserStore) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	if users == nil {
		panic("user store is required")
	}

	return func(contextGin *gin.Context) {
		identity, ok := requireIdentity(contextGin, logger, "api.me.missing_identity")
		if !ok {
			return
		}
		user, findErr := users.FindUserByHandle(contextGin.Request.Context(), identity.Handle)
		if findErr != nil {
			respondLookupError(contextGin, logger, "api.me", identity.Handle, findErr)
			return
		}
		contextGin.JSON(http.StatusOK, profileFrom(user))
	}
}

// HandleUpdateProfile applies the caller's own profile edits. The role is never taken from the body.
func HandleUpdateProfile(logger *zap.Logger, users authkit.UserStore) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	if users == nil {
		panic("user store is required")
	}

	return func(contextGin *gin.Context) {
		identity, ok := requireIdentity(contextGin, logger, "api.profile.missing_identity")
		if !ok {
			return
		}
		var inbound struct {
			DisplayName  *string `json:"displayName"`
			Phone        *string `json:"phone"`
			ProfileImage *string `json:"profileImage"`
		}
		if err := contextGin.ShouldBindJSON(&inbound); err != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
			return
		}

		update := authkit.ProfileUpdate{}
		if inbound.DisplayName != nil {
			displayName := strings.TrimSpace(*inbound.DisplayName)
			if displayName == "" {
				contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_display_name"})
				return
			}
			update.DisplayName = &displayName
		}
		if inbound.Phone != nil {
			phone := strings.TrimSpace(*inbound.Phone)
			update.Phone = &phone
		}
		if inbound.ProfileImage != nil {
			profileImage := strings.TrimSpace(*inbound.ProfileImage)
			update.ProfileImage = &profileImage
		}

		saved, saveErr := users.UpdateProfile(contextGin.Request.Context(), identity.Handle, update)
		if saveErr != nil {
			respondLookupError(contextGin, logger, "api.profile", identity.Handle, saveErr)
			return
		}
		contextGin.JSON(http.StatusOK, profileFrom(saved))
	}
}

// HandleAssignRole changes another user's role. Mount it behind authkit.RequireRole(authkit.RoleAdmin).
func HandleAssignRole(logger *zap.Logger, users authkit.UserStore) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	if users == nil {
		panic("user store is required")
	}

	return func(contextGin *gin.Context) {
		identity, ok := requireIdentity(contextGin, logger, "api.role.missing_identity")
		if !ok {
			return
		}
		var inbound struct {
			Handle string `json:"handle"`
			Role   string `json:"role"`
		}
		if err := contextGin.ShouldBindJSON(&inbound); err != nil || strings.TrimSpace(inbound.Handle) == "" {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
			return
		}
		role := strings.ToUpper(strings.TrimSpace(inbound.Role))
		if role != authkit.RoleUser && role != authkit.RoleAdmin {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_role"})
			return
		}

		saved, saveErr := users.UpdateRole(contextGin.Request.Context(), inbound.Handle, role)
		if saveErr != nil {
			respondLookupError(contextGin, logger, "api.role", inbound.Handle, saveErr)
			return
		}
		// Outstanding tokens keep the previous role until they expire.
		logger.Info("role assigned",
			zap.String("code", "api.role.assigned"),
			zap.String("actor", identity.Handle),
			zap.String("handle", saved.Handle),
			zap.String("role", saved.Role))
		contextGin.JSON(http.StatusOK, profileFrom(saved))
	}
}

func requireIdentity(contextGin *gin.Context, logger *zap.Logger, code string) (authkit.Identity, bool) {
	identity, ok := authkit.IdentityFromGin(contextGin)
	if !ok || identity.Handle == "" {
		logger.Warn("missing identity on context", zap.String("code", code))
		contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return authkit.Identity{}, false
	}
	return identity, true
}

func respondLookupError(contextGin *gin.Context, logger *zap.Logger, area string, handle string, err error) {
	if errors.Is(err, authkit.ErrUserNotFound) {
		logger.Warn("user missing",
			zap.String("code", area+".user_missing"),
			zap.String("handle", handle))
		contextGin.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "user_not_found"})
		return
	}
	logger.Error("user store error",
		zap.String("code", area+".store_error"),
		zap.String("handle", handle),
		zap.Error(err))
	contextGin.AbortWithStatus(http.StatusInternalServerError)
}
