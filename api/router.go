package api

import (
	"fileserver/config"
	"fileserver/db"
	"fileserver/utils"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// supportedVersions lists the endpoint versions this server speaks, newest
// last. The root endpoint advertises them.
var supportedVersions = []string{"1.0"}

// NewRouter wires the full HTTP surface: the unauthenticated root version
// endpoint and the Basic/Bearer-protected version-scoped API. Unknown paths
// answer 404 and known paths with an unsupported method answer 400, both in
// the error envelope.
func NewRouter(cfg *config.Config, users *db.UserStore, files *db.FileStore) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(HeadersMiddleware(cfg))
	router.Use(RequestIDMiddleware())
	router.Use(NewRateLimiter(cfg).Middleware())

	router.HandleMethodNotAllowed = true
	router.NoRoute(func(c *gin.Context) {
		respondError(c, utils.NotFound("Not Found"))
	})
	router.NoMethod(func(c *gin.Context) {
		respondError(c, utils.BadRequest("Invalid Method"))
	})

	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, strings.Join(supportedVersions, "\n"))
	})

	v1 := router.Group("/1.0")
	v1.Use(AuthMiddleware(cfg, users))
	{
		userGroup := v1.Group("/user")
		{
			userGroup.GET("/self", func(c *gin.Context) {
				GetUserSelfHandler(c, users)
			})
			userGroup.PATCH("/self", func(c *gin.Context) {
				UpdateUserSelfHandler(c, users)
			})
			userGroup.DELETE("/self", func(c *gin.Context) {
				DeleteUserSelfHandler(c, users)
			})
			userGroup.GET("/list", func(c *gin.Context) {
				ListUsersHandler(c, users)
			})
			userGroup.GET("/other", func(c *gin.Context) {
				GetUserOtherHandler(c, users)
			})
			userGroup.POST("/other", func(c *gin.Context) {
				CreateUserOtherHandler(c, users)
			})
			userGroup.PATCH("/other", func(c *gin.Context) {
				UpdateUserOtherHandler(c, users)
			})
			userGroup.DELETE("/other", func(c *gin.Context) {
				DeleteUserOtherHandler(c, users)
			})
			userGroup.GET("/token", func(c *gin.Context) {
				TokenHandler(c, cfg)
			})
		}

		fileGroup := v1.Group("/file")
		{
			fileGroup.GET("/list", func(c *gin.Context) {
				ListFilesHandler(c, files)
			})
			fileGroup.GET("/file", func(c *gin.Context) {
				GetFileHandler(c, files)
			})
			fileGroup.POST("/file", func(c *gin.Context) {
				CreateFileHandler(c, files)
			})
			fileGroup.PATCH("/file", func(c *gin.Context) {
				UpdateFileHandler(c, files)
			})
			fileGroup.DELETE("/file", func(c *gin.Context) {
				DeleteFileHandler(c, files)
			})
			fileGroup.GET("/share", func(c *gin.Context) {
				GetFileSharersHandler(c, files)
			})
			fileGroup.PATCH("/share", func(c *gin.Context) {
				SetFileSharersHandler(c, files)
			})
			fileGroup.DELETE("/share", func(c *gin.Context) {
				RemoveFileSharerHandler(c, files)
			})
		}
	}

	return router
}
