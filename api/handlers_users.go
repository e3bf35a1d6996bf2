package api

import (
	"fileserver/config"
	"fileserver/db"
	"fileserver/models"
	"fileserver/utils"
	"net/http"

	"github.com/gin-gonic/gin"
)

// requiredParam fetches a query parameter that must be present and non-empty.
func requiredParam(c *gin.Context, key string) (string, error) {
	value, present := c.GetQuery(key)
	if !present {
		return "", utils.BadRequest("Missing Parameters")
	}
	if value == "" {
		return "", utils.BadRequest("Parameters Must Not Be Empty")
	}
	return value, nil
}

// flagParam reads a boolean query parameter that acts as a flag: absent
// means false, bare presence (or an empty value) means true, and an explicit
// value must parse as a boolean.
func flagParam(c *gin.Context, key string) (bool, error) {
	raw, present := c.GetQuery(key)
	if !present {
		return false, nil
	}
	if raw == "" {
		return true, nil
	}
	value, err := utils.ParseBoolParam(raw)
	if err != nil {
		return false, utils.BadRequest("Invalid Parameter")
	}
	return value, nil
}

// GetUserSelfHandler returns the caller's own public record.
func GetUserSelfHandler(c *gin.Context, users *db.UserStore) {
	respondContent(c, http.StatusOK, currentUser(c))
}

// UpdateUserSelfHandler changes the caller's own password.
func UpdateUserSelfHandler(c *gin.Context, users *db.UserStore) {
	password, err := requiredParam(c, "password")
	if err != nil {
		respondError(c, err)
		return
	}
	self := currentUser(c).ID
	if err := users.UpdateUser(self, self, db.UserUpdate{Password: &password}); err != nil {
		respondError(c, err)
		return
	}
	respondContent(c, http.StatusOK, "Success")
}

// DeleteUserSelfHandler disables the caller's account.
func DeleteUserSelfHandler(c *gin.Context, users *db.UserStore) {
	if err := users.Disable(currentUser(c).ID); err != nil {
		respondError(c, err)
		return
	}
	respondContent(c, http.StatusOK, "Success")
}

// ListUsersHandler returns all user ids, or full public records when the
// 'full' flag is set. Admin only.
func ListUsersHandler(c *gin.Context, users *db.UserStore) {
	requester := currentUser(c).ID

	full, err := flagParam(c, "full")
	if err != nil {
		respondError(c, err)
		return
	}

	if full {
		list, err := users.ListUsers(requester)
		if err != nil {
			respondError(c, err)
			return
		}
		respondContent(c, http.StatusOK, list)
		return
	}
	ids, err := users.ListUserIDs(requester)
	if err != nil {
		respondError(c, err)
		return
	}
	respondContent(c, http.StatusOK, ids)
}

// GetUserOtherHandler returns another user's public record. Admin only.
func GetUserOtherHandler(c *gin.Context, users *db.UserStore) {
	if err := users.RequireAdmin(currentUser(c).ID); err != nil {
		respondError(c, err)
		return
	}
	target, err := requiredParam(c, "user")
	if err != nil {
		respondError(c, err)
		return
	}
	user, err := users.GetUser(target)
	if err != nil {
		respondError(c, err)
		return
	}
	respondContent(c, http.StatusOK, user)
}

// CreateUserOtherHandler creates a new account. Admin only; all parameters
// are required.
func CreateUserOtherHandler(c *gin.Context, users *db.UserStore) {
	requester := currentUser(c).ID
	if err := users.RequireAdmin(requester); err != nil {
		respondError(c, err)
		return
	}

	target, err := requiredParam(c, "user")
	if err != nil {
		respondError(c, err)
		return
	}
	password, err := requiredParam(c, "password")
	if err != nil {
		respondError(c, err)
		return
	}
	rawType, err := requiredParam(c, "type")
	if err != nil {
		respondError(c, err)
		return
	}
	role, err := models.ParseRole(rawType)
	if err != nil {
		respondError(c, utils.BadRequest("Invalid Parameter"))
		return
	}
	rawEnabled, err := requiredParam(c, "enabled")
	if err != nil {
		respondError(c, err)
		return
	}
	enabled, err := utils.ParseBoolParam(rawEnabled)
	if err != nil {
		respondError(c, utils.BadRequest("Invalid Parameter"))
		return
	}

	if err := users.CreateUser(requester, target, password, role, enabled); err != nil {
		respondError(c, err)
		return
	}
	respondContent(c, http.StatusOK, "Success")
}

// UpdateUserOtherHandler updates another user's account. Admin only. At
// least one of password, type, enabled or id must be supplied; the id
// parameter renames the account.
func UpdateUserOtherHandler(c *gin.Context, users *db.UserStore) {
	requester := currentUser(c).ID
	if err := users.RequireAdmin(requester); err != nil {
		respondError(c, err)
		return
	}
	target, err := requiredParam(c, "user")
	if err != nil {
		respondError(c, err)
		return
	}

	var upd db.UserUpdate
	if _, present := c.GetQuery("password"); present {
		password, err := requiredParam(c, "password")
		if err != nil {
			respondError(c, err)
			return
		}
		upd.Password = &password
	}
	if _, present := c.GetQuery("type"); present {
		rawType, err := requiredParam(c, "type")
		if err != nil {
			respondError(c, err)
			return
		}
		role, err := models.ParseRole(rawType)
		if err != nil {
			respondError(c, utils.BadRequest("Invalid Parameter"))
			return
		}
		upd.Type = &role
	}
	if _, present := c.GetQuery("enabled"); present {
		rawEnabled, err := requiredParam(c, "enabled")
		if err != nil {
			respondError(c, err)
			return
		}
		enabled, err := utils.ParseBoolParam(rawEnabled)
		if err != nil {
			respondError(c, utils.BadRequest("Invalid Parameter"))
			return
		}
		upd.Enabled = &enabled
	}
	if _, present := c.GetQuery("id"); present {
		newID, err := requiredParam(c, "id")
		if err != nil {
			respondError(c, err)
			return
		}
		upd.NewID = &newID
	}

	if err := users.UpdateUser(requester, target, upd); err != nil {
		respondError(c, err)
		return
	}
	respondContent(c, http.StatusOK, "Success")
}

// DeleteUserOtherHandler removes another user's account. Admin only.
func DeleteUserOtherHandler(c *gin.Context, users *db.UserStore) {
	requester := currentUser(c).ID
	if err := users.RequireAdmin(requester); err != nil {
		respondError(c, err)
		return
	}
	target, err := requiredParam(c, "user")
	if err != nil {
		respondError(c, err)
		return
	}
	if err := users.DeleteUser(requester, target); err != nil {
		respondError(c, err)
		return
	}
	respondContent(c, http.StatusOK, "Success")
}

// TokenHandler issues a short-lived bearer token for the authenticated
// caller, accepted by the auth middleware in place of Basic credentials.
func TokenHandler(c *gin.Context, cfg *config.Config) {
	user := currentUser(c)
	token, err := utils.GenerateJWT(user.ID, cfg.JwtSecret, cfg.TokenLifetime)
	if err != nil {
		respondError(c, utils.InternalError("Token Generation Failed"))
		return
	}
	respondContent(c, http.StatusOK, gin.H{
		"token":      token,
		"expires_in": int64(cfg.TokenLifetime.Seconds()),
	})
}
