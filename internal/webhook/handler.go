package webhook

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/matheus-sup/CRM-sub000/internal/bot"
	"github.com/matheus-sup/CRM-sub000/internal/whatsapp"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	Engine *bot.Engine
}

func NewHandler(engine *bot.Engine) *Handler {
	return &Handler{Engine: engine}
}

// Payload is the Evolution API webhook envelope.
type Payload struct {
	Event    string                   `json:"event"`
	Instance string                   `json:"instance"`
	Data     whatsapp.ExternalMessage `json:"data"`
}

// HandleEvent receives Evolution webhook deliveries. Customer messages run
// through the engine, fromMe echoes are logged as outbound, and everything
// else (status updates, group chatter) is acknowledged and dropped.
func (h *Handler) HandleEvent(c *gin.Context) {
	var payload Payload
	if err := c.ShouldBindJSON(&payload); err != nil {
		log.Printf("Error binding webhook JSON: %v", err)
		c.Status(http.StatusBadRequest)
		return
	}

	if !strings.EqualFold(payload.Event, "messages.upsert") {
		c.Status(http.StatusOK)
		return
	}

	msg := payload.Data
	if strings.Contains(msg.Key.RemoteJid, "@g.us") {
		c.Status(http.StatusOK)
		return
	}

	phone := whatsapp.PhoneFromJid(msg.Key.RemoteJid)
	if phone == "" {
		c.Status(http.StatusOK)
		return
	}

	mediaType, mediaURL := msg.Media()
	in := bot.Inbound{
		PhoneNumber: phone,
		Text:        msg.Text(),
		MediaType:   mediaType,
		MediaURL:    mediaURL,
		ExternalID:  msg.Key.ID,
		PushName:    msg.PushName,
		Timestamp:   msg.Timestamp(),
	}

	// Agent messages sent from the phone app echo back with fromMe set.
	// They are logged as outbound, never run through automation.
	if msg.Key.FromMe {
		go func() {
			if err := h.Engine.RecordOutboundEcho(context.Background(), in); err != nil {
				log.Printf("Error recording outbound echo for %s: %v", phone, err)
			}
		}()
		c.Status(http.StatusOK)
		return
	}

	log.Printf("Received message from %s: %s", phone, in.Text)

	// Respond to the gateway immediately; the engine serializes per phone.
	go func() {
		if err := h.Engine.ProcessIncoming(context.Background(), in); err != nil {
			log.Printf("Error processing message from %s: %v", phone, err)
		}
	}()

	c.Status(http.StatusOK)
}
