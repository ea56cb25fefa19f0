package router

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Swagger serves the UI and doc.json of the registered API docs under
// /swagger. Every request passes guard first.
func Swagger(guard gin.HandlerFunc) RouteRegistrar {
	return RegistrarFunc(func(rg *gin.RouterGroup) {
		rg.GET("/swagger/*any", guard, ginSwagger.WrapHandler(swaggerFiles.Handler))
	})
}
