package handlers

import (
	"log"
	"net/http"
	"time"

	"github.com/LovationAdmin/advisor-api/middleware"
	"github.com/LovationAdmin/advisor-api/models"
	"github.com/LovationAdmin/advisor-api/utils"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"
	"github.com/olahol/melody"
)

const (
	identityKey          = "identity"
	financialUpdateEvent = "financial_data_updated"
)

// WSHandler pushes "your numbers changed" signals to open dashboards, one
// room per identity key.
type WSHandler struct {
	M         *melody.Melody
	JWTSecret string
}

func NewWSHandler(jwtSecret string) *WSHandler {
	m := melody.New()

	m.Config.MaxMessageSize = 64 * 1024

	// Keep-alive for hosts that drop idle connections
	m.Config.PingPeriod = 30 * time.Second
	m.Config.PongWait = 60 * time.Second

	m.HandleConnect(func(s *melody.Session) {
		log.Printf("[WS] ✅ Dashboard connected: %s", utils.MaskID(sessionIdentity(s)))
	})

	m.HandleDisconnect(func(s *melody.Session) {
		log.Printf("[WS] 🔌 Dashboard disconnected: %s", utils.MaskID(sessionIdentity(s)))
	})

	m.HandleError(func(s *melody.Session, err error) {
		log.Printf("[WS] ❌ WebSocket error: %v", err)
	})

	return &WSHandler{M: m, JWTSecret: jwtSecret}
}

func sessionIdentity(s *melody.Session) string {
	v, _ := s.Get(identityKey)
	identity, _ := v.(string)
	return identity
}

// HandleWS upgrades the request. Browsers cannot set headers on a websocket
// handshake, so the access token may also come as ?token=.
func (h *WSHandler) HandleWS(c *gin.Context) {
	id := identityFrom(c, "")
	if id.UserID == "" {
		if token := c.Query("token"); token != "" {
			if userID, err := middleware.ParseUserToken(token, h.JWTSecret); err == nil {
				id = models.Identity{UserID: userID}
			}
		}
	}
	if id.Empty() {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Sign in or choose a demo profile"})
		return
	}

	keys := map[string]interface{}{identityKey: id.Key()}
	if err := h.M.HandleRequestWithKeys(c.Writer, c.Request, keys); err != nil {
		log.Printf("[WS] ❌ Failed to upgrade websocket: %v", err)
	}
}

type financialUpdateMessage struct {
	Type     string                    `json:"type"`
	Snapshot *models.FinancialSnapshot `json:"snapshot,omitempty"`
	At       time.Time                 `json:"at"`
}

// NotifyFinancialUpdate tells every dashboard of identity to refetch.
func (h *WSHandler) NotifyFinancialUpdate(identity string, snapshot *models.FinancialSnapshot) {
	msg, err := json.Marshal(financialUpdateMessage{
		Type:     financialUpdateEvent,
		Snapshot: snapshot,
		At:       time.Now().UTC(),
	})
	if err != nil {
		log.Printf("[WS] ⚠️  Failed to encode update: %v", err)
		return
	}

	err = h.M.BroadcastFilter(msg, func(q *melody.Session) bool {
		return sessionIdentity(q) == identity
	})
	if err != nil {
		log.Printf("[WS] ⚠️  Error broadcasting to %s: %v", utils.MaskID(identity), err)
	}
}
