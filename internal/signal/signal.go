package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/sugunalabs/callserver/internal/domain"
	"github.com/sugunalabs/callserver/internal/metrics"
	"github.com/sugunalabs/callserver/internal/token"
)

var ErrBackpressure = errors.New("backpressure")

// Controller upgrades and authenticates signaling connections and
// feeds their events into the Coordinator.
type Controller struct {
	Coord *Coordinator
}

func NewController(coord *Coordinator) *Controller {
	return &Controller{Coord: coord}
}

type wsChannel struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func (c *wsChannel) SendEvent(v any) error {
	return sendJSON(c, v)
}

func (c *wsChannel) TrySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsChannel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal authenticates the connection with a signaling token
// before upgrading. A missing tenant or a bad token refuses the
// connection; there is no partially trusted state.
func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	appID := domain.AppID(c.Query("appId"))
	tc, err := ctl.Coord.Tenants.Get(appID)
	if err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	}
	claims, err := token.Verify(tc.SigningKey, c.Query("token"), "", appID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
		return
	}
	identity := domain.Identity(claims.Identity)

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &wsChannel{
		id:   uuid.NewString(),
		conn: ws,
		send: make(chan []byte, 32),
	}
	ctl.Coord.Channels.Bind(appID, identity, conn)
	metrics.SignalConnections.Inc()
	log.Info().Str("module", "signal").Str("app_id", string(appID)).Str("identity", string(identity)).Str("conn", conn.id).Msg("channel connected")

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	go func() {
		defer cancel()
		ctl.readPump(ctx, appID, identity, conn)
		ctl.Coord.Disconnect(context.Background(), appID, identity, conn)
		metrics.SignalConnections.Dec()
	}()
}
