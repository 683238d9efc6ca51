package handlers

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/Poljopodrska/ava-olo-agricultural-core-sub000/internal/transport/http/docs"
)

// RegisterSwagger serves the registration API reference under /docs.
// Models are collapsed; the turn request and reply are the interesting part.
func RegisterSwagger(r gin.IRouter) {
	r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler,
		ginSwagger.DocExpansion("list"),
		ginSwagger.DefaultModelsExpandDepth(-1),
	))
}
