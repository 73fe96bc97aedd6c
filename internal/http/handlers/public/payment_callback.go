package public

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/carwash-next/internal/constants"
	"github.com/carwash-next/internal/payment"
	"github.com/carwash-next/internal/payment/wechat"

	"github.com/gin-gonic/gin"
	gopaywechat "github.com/go-pay/gopay/wechat"
)

const (
	callbackLogValueLimit = 4096
	callbackBodyLimit     = 64 << 10
)

// WechatCallback 微信支付结果通知（v2 XML），同时兼容表单提交
func (h *Handler) WechatCallback(c *gin.Context) {
	log := requestLog(c)
	params, err := parseWechatCallback(c)
	if err != nil {
		log.Warnw("wechat_callback_parse_failed", "client_ip", c.ClientIP(), "error", err)
		c.Data(http.StatusOK, "application/xml; charset=utf-8", []byte(constants.WechatCallbackFail))
		return
	}
	log.Infow("wechat_callback_received",
		"client_ip", c.ClientIP(),
		"out_trade_no", params[constants.CallbackFieldOutTradeNo],
		"raw", callbackParamsForLog(params),
	)

	ack := constants.WechatCallbackFail
	if h.PaymentService.HandleCallback(c.Request.Context(), payment.MethodWechat.String(), params) {
		ack = constants.WechatCallbackSuccess
	}
	c.Data(http.StatusOK, "application/xml; charset=utf-8", []byte(ack))
}

// AlipayCallback 支付宝异步通知
func (h *Handler) AlipayCallback(c *gin.Context) {
	h.handlePlainCallback(c, payment.MethodAlipay, constants.AlipayCallbackSuccess, constants.AlipayCallbackFail)
}

// VirtualCallback 虚拟网关通知，仅用于联调
func (h *Handler) VirtualCallback(c *gin.Context) {
	h.handlePlainCallback(c, payment.MethodVirtual, constants.VirtualCallbackSuccess, constants.VirtualCallbackFail)
}

func (h *Handler) handlePlainCallback(c *gin.Context, method payment.Method, success, fail string) {
	log := requestLog(c).With("payment_method", method.String())
	form, err := parseCallbackForm(c)
	if err != nil {
		log.Warnw("payment_callback_form_parse_failed", "client_ip", c.ClientIP(), "error", err)
		c.String(http.StatusOK, fail)
		return
	}
	params := flattenCallbackForm(form)
	log.Infow("payment_callback_received",
		"client_ip", c.ClientIP(),
		"out_trade_no", params[constants.CallbackFieldOutTradeNo],
		"raw", callbackParamsForLog(params),
	)

	if h.PaymentService.HandleCallback(c.Request.Context(), method.String(), params) {
		c.String(http.StatusOK, success)
		return
	}
	c.String(http.StatusOK, fail)
}

// parseWechatCallback XML 报文交给 gopay 解析，其余按表单处理
func parseWechatCallback(c *gin.Context) (map[string]string, error) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, callbackBodyLimit))
	if err != nil {
		return nil, err
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(body))
	if !looksLikeXML(c.GetHeader("Content-Type"), body) {
		form, err := parseCallbackForm(c)
		if err != nil {
			return nil, err
		}
		return flattenCallbackForm(form), nil
	}

	bm, err := gopaywechat.ParseNotifyToBodyMap(c.Request)
	if err != nil {
		return nil, err
	}
	return wechat.ParamsFromBodyMap(bm), nil
}

func looksLikeXML(contentType string, body []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "xml") {
		return true
	}
	return bytes.HasPrefix(bytes.TrimSpace(body), []byte("<"))
}

// parseCallbackForm 合并表单体与查询参数，同名字段表单体在前
func parseCallbackForm(c *gin.Context) (map[string][]string, error) {
	if err := c.Request.ParseForm(); err != nil {
		return nil, err
	}
	return c.Request.Form, nil
}

// flattenCallbackForm 多值字段只取第一个值
func flattenCallbackForm(form map[string][]string) map[string]string {
	params := make(map[string]string, len(form))
	for key, values := range form {
		if len(values) == 0 {
			params[key] = ""
			continue
		}
		params[key] = values[0]
	}
	return params
}

func callbackParamsForLog(params map[string]string) map[string]string {
	result := make(map[string]string, len(params))
	for key, value := range params {
		value = strings.TrimSpace(value)
		if len(value) > callbackLogValueLimit {
			value = value[:callbackLogValueLimit] + "...(truncated)"
		}
		result[key] = value
	}
	return result
}
