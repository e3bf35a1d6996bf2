package api

import (
	"fileserver/db"
	"fileserver/utils"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
)

// parseFileID reads and parses the required 'id' parameter.
func parseFileID(c *gin.Context) (int64, error) {
	raw, err := requiredParam(c, "id")
	if err != nil {
		return 0, err
	}
	id, parseErr := strconv.ParseInt(raw, 10, 64)
	if parseErr != nil {
		return 0, utils.BadRequest("Invalid Parameters")
	}
	return id, nil
}

// validateContent checks a submitted content value. Stored content must be a
// JSON object; anything else is rejected before it reaches the disk.
func validateContent(content string) error {
	if !gjson.Valid(content) || !gjson.Parse(content).IsObject() {
		return utils.BadRequest("Malformed Input")
	}
	return nil
}

// ListFilesHandler returns file ids. By default the caller's own; the 'user'
// parameter targets another owner (admin only), the 'shared' flag lists
// files shared with the caller, and 'q' filters by content.
func ListFilesHandler(c *gin.Context, files *db.FileStore) {
	requester := currentUser(c).ID

	shared, err := flagParam(c, "shared")
	if err != nil {
		respondError(c, err)
		return
	}
	if shared {
		respondContent(c, http.StatusOK, files.ListSharedWith(requester))
		return
	}

	target, present := c.GetQuery("user")
	if present && target == "" {
		respondError(c, utils.BadRequest("Parameters Must Not Be Empty"))
		return
	}
	if !present {
		target = requester
	}

	var cond *db.ContentCondition
	if raw, present := c.GetQuery("q"); present {
		parsed, err := db.ParseContentCondition(raw)
		if err != nil {
			respondError(c, utils.BadRequest("Invalid Parameter"))
			return
		}
		cond = parsed
	}

	ids, err := files.List(requester, target, cond)
	if err != nil {
		respondError(c, err)
		return
	}
	respondContent(c, http.StatusOK, ids)
}

// GetFileHandler returns the metadata view or the full content of one file.
func GetFileHandler(c *gin.Context, files *db.FileStore) {
	id, err := parseFileID(c)
	if err != nil {
		respondError(c, err)
		return
	}

	meta, err := flagParam(c, "meta")
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := files.Get(currentUser(c).ID, id, meta)
	if err != nil {
		respondError(c, err)
		return
	}
	respondContent(c, http.StatusOK, result)
}

// CreateFileHandler stores a new file and returns its id. Content defaults
// to an empty object when omitted.
func CreateFileHandler(c *gin.Context, files *db.FileStore) {
	content, present := c.GetQuery("content")
	if !present || content == "" {
		content = "{}"
	}
	if err := validateContent(content); err != nil {
		respondError(c, err)
		return
	}

	id, err := files.Create(currentUser(c).ID, []byte(content))
	if err != nil {
		respondError(c, err)
		return
	}
	respondContent(c, http.StatusOK, id)
}

// UpdateFileHandler replaces the content of an owned file.
func UpdateFileHandler(c *gin.Context, files *db.FileStore) {
	id, err := parseFileID(c)
	if err != nil {
		respondError(c, err)
		return
	}
	content, err := requiredParam(c, "content")
	if err != nil {
		respondError(c, err)
		return
	}
	if err := validateContent(content); err != nil {
		respondError(c, err)
		return
	}

	if err := files.Update(currentUser(c).ID, id, []byte(content)); err != nil {
		respondError(c, err)
		return
	}
	respondContent(c, http.StatusOK, "Success")
}

// DeleteFileHandler removes an owned file.
func DeleteFileHandler(c *gin.Context, files *db.FileStore) {
	id, err := parseFileID(c)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := files.Delete(currentUser(c).ID, id); err != nil {
		respondError(c, err)
		return
	}
	respondContent(c, http.StatusOK, "Success")
}

// GetFileSharersHandler returns the user ids an owned file is shared with.
func GetFileSharersHandler(c *gin.Context, files *db.FileStore) {
	id, err := parseFileID(c)
	if err != nil {
		respondError(c, err)
		return
	}
	sharers, err := files.GetSharers(currentUser(c).ID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondContent(c, http.StatusOK, sharers)
}

// SetFileSharersHandler replaces the share list of an owned file with the
// comma-joined 'users' parameter. An empty value removes all shares.
func SetFileSharersHandler(c *gin.Context, files *db.FileStore) {
	id, err := parseFileID(c)
	if err != nil {
		respondError(c, err)
		return
	}
	raw, present := c.GetQuery("users")
	if !present {
		respondError(c, utils.BadRequest("Missing Parameters"))
		return
	}
	var targets []string
	if raw != "" {
		targets = strings.Split(raw, ",")
	}

	if err := files.SetSharers(currentUser(c).ID, id, targets); err != nil {
		respondError(c, err)
		return
	}
	respondContent(c, http.StatusOK, "Success")
}

// RemoveFileSharerHandler removes one user from an owned file's share list.
func RemoveFileSharerHandler(c *gin.Context, files *db.FileStore) {
	id, err := parseFileID(c)
	if err != nil {
		respondError(c, err)
		return
	}
	target, err := requiredParam(c, "user")
	if err != nil {
		respondError(c, err)
		return
	}
	if err := files.RemoveSharer(currentUser(c).ID, id, target); err != nil {
		respondError(c, err)
		return
	}
	respondContent(c, http.StatusOK, "Success")
}
