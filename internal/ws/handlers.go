package ws

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// DashboardHandler upgrades a dashboard connection. ?topics=a,b restricts
// delivery to those topics.
func DashboardHandler(hubs *Hubs) gin.HandlerFunc {
	return func(c *gin.Context) {
		if hubs == nil || hubs.Dashboard == nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "realtime not available"})
			return
		}
		topics := map[string]struct{}{}
		for _, t := range strings.Split(c.Query("topics"), ",") {
			if t = strings.TrimSpace(t); t != "" {
				topics[t] = struct{}{}
			}
		}
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		dc := &dashboardClient{client: newClient(conn, sendBufferSize), topics: topics}
		dc.unregister = func() { hubs.Dashboard.leave(dc) }
		hubs.Dashboard.join(dc)

		go dc.writePump()
		dc.readPump()
	}
}

// KioskHandler upgrades the agent connection for the workstation at :ip.
func KioskHandler(hubs *Hubs) gin.HandlerFunc {
	return func(c *gin.Context) {
		if hubs == nil || hubs.Kiosk == nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "realtime not available"})
			return
		}
		ip := strings.TrimSpace(c.Param("ip"))
		if ip == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "ip is required"})
			return
		}
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		kc := &kioskClient{client: newClient(conn, 64), ip: ip}
		kc.unregister = func() { hubs.Kiosk.leave(kc) }
		hubs.Kiosk.join(kc)

		go kc.writePump()
		kc.readPump()
	}
}
