package generic

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"k8s.io/apimachinery/pkg/util/sets"
)

type Server struct {
	Router  *gin.Engine
	Port    string
	Methods []string
}

// RestrictMethods rejects verbs outside Methods with 405. Call it before routes are installed.
func (s *Server) RestrictMethods() {
	allowed := sets.NewString(s.Methods...)
	allow := strings.Join(allowed.List(), ", ")
	s.Router.Use(func(c *gin.Context) {
		if !allowed.Has(c.Request.Method) {
			c.Header("Allow", allow)
			c.AbortWithStatus(http.StatusMethodNotAllowed)
			return
		}
		c.Next()
	})
}
