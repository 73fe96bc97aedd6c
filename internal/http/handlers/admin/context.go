package admin

import (
	handlershared "github.com/carwash-next/internal/http/handlers/shared"
	"github.com/carwash-next/internal/http/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func getOperatorID(c *gin.Context) (uint, bool) {
	return handlershared.GetContextUintWithKeys(c, "operator_id", "error.operator_id_invalid", "error.operator_id_type_invalid")
}

func requestLog(c *gin.Context) *zap.SugaredLogger {
	return handlershared.RequestLog(c)
}

func respondError(c *gin.Context, code int, key string, err error) {
	handlershared.RespondError(c, code, key, err)
}

func respondPaymentError(c *gin.Context, err error, fallbackKey string) {
	handlershared.RespondWithMappedError(c, err, handlershared.PaymentErrorRules(), response.CodeInternal, fallbackKey)
}
