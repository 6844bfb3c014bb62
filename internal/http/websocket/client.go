package websocket

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// socketClient wraps one upgraded connection. Writes are serialised
// with a mutex as gorilla connections permit only one concurrent
// writer.
type socketClient struct {
	id        *uuid.UUID
	socket    *websocket.Conn
	writeLock sync.Mutex
}

// Read pumps inbound messages from the connection on to the provided
// channel until the connection errors or closes. Malformed payloads are
// dropped rather than killing the read loop.
func (client *socketClient) Read(receiveCh chan *SocketMessage) error {
	for {
		var message SocketMessage
		if err := client.socket.ReadJSON(&message); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}

			return fmt.Errorf("read loop for client {%v} failed: %w", client.id, err)
		}

		message.Origin = client.id
		receiveCh <- &message
	}
}

func (client *socketClient) SendMessage(message *SocketMessage) error {
	client.writeLock.Lock()
	defer client.writeLock.Unlock()

	return client.socket.WriteJSON(message)
}

func (client *socketClient) Close() {
	client.socket.Close()
}
