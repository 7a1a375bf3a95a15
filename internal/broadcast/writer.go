package broadcast

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/livefeed/internal/adapter/metrics"
	"github.com/pscheid92/livefeed/internal/domain"
)

const (
	writeDeadline     = 5 * time.Second
	pingInterval      = 30 * time.Second
	pongDeadline      = 60 * time.Second
	messageBufferSize = 16
)

type outbound struct {
	payload []byte
	result  chan error
}

// delivery is a pending write. wait returns its outcome exactly once.
type delivery struct {
	writer *clientWriter
	result chan error
}

func (d delivery) wait() error {
	select {
	case err := <-d.result:
		return err
	case <-d.writer.exited:
		select {
		case err := <-d.result:
			return err
		default:
			return domain.ErrWriterStopped
		}
	}
}

type clientWriter struct {
	connection  *websocket.Conn
	clock       clockwork.Clock
	liveMetrics *metrics.LiveMetrics
	sendChannel chan outbound
	doneChannel chan struct{}
	exited      chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

func newClientWriter(connection *websocket.Conn, clock clockwork.Clock, liveMetrics *metrics.LiveMetrics) *clientWriter {
	cw := &clientWriter{
		connection:  connection,
		clock:       clock,
		liveMetrics: liveMetrics,
		sendChannel: make(chan outbound, messageBufferSize),
		doneChannel: make(chan struct{}),
		exited:      make(chan struct{}),
	}
	cw.configurePongHandler()
	cw.wg.Add(1)
	go cw.run()
	return cw
}

// enqueue hands a payload to the writer goroutine without blocking.
// A stopped writer or a full queue fails the delivery immediately.
func (cw *clientWriter) enqueue(payload []byte) delivery {
	d := delivery{writer: cw, result: make(chan error, 1)}

	select {
	case <-cw.exited:
		d.result <- domain.ErrWriterStopped
		return d
	default:
	}

	select {
	case cw.sendChannel <- outbound{payload: payload, result: d.result}:
	default:
		d.result <- domain.ErrSendQueueFull
	}
	return d
}

func (cw *clientWriter) run() {
	ticker := cw.clock.NewTicker(pingInterval)
	defer ticker.Stop()
	defer cw.wg.Done()
	defer close(cw.exited)

	for {
		select {
		case msg := <-cw.sendChannel:
			start := cw.clock.Now()
			cw.updateWriteDeadline()
			err := cw.connection.WriteMessage(websocket.TextMessage, msg.payload)
			msg.result <- err
			if err != nil {
				// A failed write leaves the frame stream in an unknown state.
				_ = cw.connection.Close()
				return
			}
			if cw.liveMetrics != nil {
				cw.liveMetrics.SendDuration.Observe(cw.clock.Since(start).Seconds())
			}
		case <-ticker.Chan():
			cw.updateWriteDeadline()
			if err := cw.connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				if cw.liveMetrics != nil {
					cw.liveMetrics.DeliveryFailures.WithLabelValues("ping").Inc()
				}
				_ = cw.connection.Close()
				return
			}
		case <-cw.doneChannel:
			return
		}
	}
}

func (cw *clientWriter) stop() {
	cw.stopOnce.Do(func() {
		close(cw.doneChannel)
		_ = cw.connection.Close()
	})
	cw.wg.Wait()
}

// stopGraceful sends a WebSocket close frame with reason before closing.
func (cw *clientWriter) stopGraceful(reason string) {
	cw.stopOnce.Do(func() {
		close(cw.doneChannel)

		// The run goroutine must be gone before we write, it is the only other writer.
		cw.wg.Wait()

		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		cw.updateWriteDeadline()
		_ = cw.connection.WriteMessage(websocket.CloseMessage, closeMsg)
		_ = cw.connection.Close()
	})
	cw.wg.Wait()
}

func (cw *clientWriter) configurePongHandler() {
	cw.updateReadDeadline()
	cw.connection.SetPongHandler(func(string) error {
		cw.updateReadDeadline()
		return nil
	})
}

func (cw *clientWriter) updateWriteDeadline() {
	_ = cw.connection.SetWriteDeadline(cw.clock.Now().Add(writeDeadline))
}

func (cw *clientWriter) updateReadDeadline() {
	_ = cw.connection.SetReadDeadline(cw.clock.Now().Add(pongDeadline))
}
