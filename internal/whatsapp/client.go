package whatsapp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/matheus-sup/CRM-sub000/internal/config"
)

// Client talks to an Evolution API instance. It covers the two capabilities
// the engine needs: sending outbound messages and fetching chat history for
// reconciliation.
type Client struct {
	Config     *config.Config
	HTTPClient *http.Client
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		Config:     cfg,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// --- Request/Response Structures ---

type sendTextRequest struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

type sendMediaRequest struct {
	Number    string `json:"number"`
	MediaType string `json:"mediatype"`
	Media     string `json:"media"`
	Caption   string `json:"caption,omitempty"`
}

type sendResponse struct {
	Key struct {
		ID        string `json:"id"`
		RemoteJid string `json:"remoteJid"`
	} `json:"key"`
	Status string `json:"status"`
}

// ExternalChat is one chat as returned by the Evolution findChats endpoint.
type ExternalChat struct {
	RemoteJid string `json:"remoteJid"`
	PushName  string `json:"pushName"`
}

// ExternalMessage is one message as returned by findMessages.
type ExternalMessage struct {
	Key struct {
		ID        string `json:"id"`
		RemoteJid string `json:"remoteJid"`
		FromMe    bool   `json:"fromMe"`
	} `json:"key"`
	Message struct {
		Conversation        string `json:"conversation"`
		ExtendedTextMessage *struct {
			Text string `json:"text"`
		} `json:"extendedTextMessage"`
		ImageMessage *struct {
			Caption string `json:"caption"`
			URL     string `json:"url"`
		} `json:"imageMessage"`
		AudioMessage *struct {
			URL string `json:"url"`
		} `json:"audioMessage"`
		DocumentMessage *struct {
			Caption string `json:"caption"`
			URL     string `json:"url"`
		} `json:"documentMessage"`
	} `json:"message"`
	MessageTimestamp int64  `json:"messageTimestamp"`
	PushName         string `json:"pushName"`
}

// Text extracts the displayable text of an external message.
func (m *ExternalMessage) Text() string {
	if m.Message.Conversation != "" {
		return m.Message.Conversation
	}
	if m.Message.ExtendedTextMessage != nil {
		return m.Message.ExtendedTextMessage.Text
	}
	if m.Message.ImageMessage != nil {
		return m.Message.ImageMessage.Caption
	}
	if m.Message.DocumentMessage != nil {
		return m.Message.DocumentMessage.Caption
	}
	return ""
}

// Media returns the media type and url of an external message, empty when
// it is plain text.
func (m *ExternalMessage) Media() (mediaType, mediaURL string) {
	switch {
	case m.Message.ImageMessage != nil:
		return "image", m.Message.ImageMessage.URL
	case m.Message.AudioMessage != nil:
		return "audio", m.Message.AudioMessage.URL
	case m.Message.DocumentMessage != nil:
		return "document", m.Message.DocumentMessage.URL
	}
	return "", ""
}

// Timestamp converts the unix message timestamp.
func (m *ExternalMessage) Timestamp() time.Time {
	if m.MessageTimestamp == 0 {
		return time.Now()
	}
	return time.Unix(m.MessageTimestamp, 0)
}

// PhoneFromJid strips the WhatsApp jid suffix, e.g.
// "5511999999999@s.whatsapp.net" -> "5511999999999".
func PhoneFromJid(jid string) string {
	if i := strings.Index(jid, "@"); i >= 0 {
		return jid[:i]
	}
	return jid
}

// --- Helper Functions ---

func (c *Client) sendRequest(method, url string, body interface{}) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("apikey", c.Config.EvolutionAPIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return respBody, fmt.Errorf("evolution API error: %s - %s", resp.Status, string(respBody))
	}

	return respBody, nil
}

func (c *Client) endpoint(path string) string {
	return fmt.Sprintf("%s/%s/%s",
		strings.TrimRight(c.Config.EvolutionURL, "/"), path, c.Config.EvolutionInstance)
}

// --- Messaging Methods ---

// SendText sends a plain text message and returns the external message id.
func (c *Client) SendText(phone, text string) (string, error) {
	respBody, err := c.sendRequest("POST", c.endpoint("message/sendText"), sendTextRequest{
		Number: phone,
		Text:   text,
	})
	if err != nil {
		return "", err
	}

	var resp sendResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", err
	}
	return resp.Key.ID, nil
}

// SendMedia sends a media message by url with an optional caption.
func (c *Client) SendMedia(phone, mediaURL, mediaType, caption string) (string, error) {
	respBody, err := c.sendRequest("POST", c.endpoint("message/sendMedia"), sendMediaRequest{
		Number:    phone,
		MediaType: mediaType,
		Media:     mediaURL,
		Caption:   caption,
	})
	if err != nil {
		return "", err
	}

	var resp sendResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", err
	}
	return resp.Key.ID, nil
}

// Send satisfies the engine's Sender contract: text when mediaType is
// empty, media otherwise (content doubles as the caption).
func (c *Client) Send(phone, content, mediaType, mediaURL string) (string, error) {
	if mediaType == "" {
		return c.SendText(phone, content)
	}
	return c.SendMedia(phone, mediaURL, mediaType, content)
}

// --- Chat History Methods ---

// FindChats lists every chat known to the Evolution instance.
func (c *Client) FindChats() ([]ExternalChat, error) {
	respBody, err := c.sendRequest("POST", c.endpoint("chat/findChats"), map[string]interface{}{})
	if err != nil {
		return nil, err
	}

	var chats []ExternalChat
	if err := json.Unmarshal(respBody, &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

// FindMessages fetches the message history of one chat.
func (c *Client) FindMessages(remoteJid string) ([]ExternalMessage, error) {
	respBody, err := c.sendRequest("POST", c.endpoint("chat/findMessages"), map[string]interface{}{
		"where": map[string]interface{}{
			"key": map[string]interface{}{
				"remoteJid": remoteJid,
			},
		},
	})
	if err != nil {
		return nil, err
	}

	var messages []ExternalMessage
	if err := json.Unmarshal(respBody, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}
