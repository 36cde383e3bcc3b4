package bridge

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/gomoncli/zadarma-bridge/internal/pbx"
)

// Routes registers the webhook endpoints on the given router.
func (b *Bridge) Routes(r gin.IRouter) {
	r.GET("/webhook", b.handleVerify)
	r.POST("/webhook", b.handleWebhook)
}

// handleVerify answers the provider's ownership handshake. Zadarma sends
// a GET with zd_echo and expects the value echoed back verbatim.
func (b *Bridge) handleVerify(c *gin.Context) {
	if echo := c.Query("zd_echo"); echo != "" {
		c.String(http.StatusOK, echo)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "active", "service": "zadarma-bridge"})
}

// handleWebhook ingests one notification. The response is always 200 ok:
// the provider retries non-200 answers, and nothing downstream of parsing
// is allowed to fail the webhook.
func (b *Bridge) handleWebhook(c *gin.Context) {
	evt, err := parseWebhook(c)
	if err != nil {
		b.log.WithError(err).Warn("unparseable webhook body")
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	b.HandleEvent(c.Request.Context(), evt)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func parseWebhook(c *gin.Context) (pbx.Event, error) {
	if strings.HasPrefix(c.ContentType(), "application/json") {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			return pbx.Event{}, err
		}
		return pbx.ParseJSON(body)
	}

	if err := c.Request.ParseForm(); err != nil {
		return pbx.Event{}, err
	}
	return pbx.FromValues(c.Request.PostForm), nil
}
